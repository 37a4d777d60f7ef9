// Package routing declares broker topology against a pluggable Operator.
//
// A Configurator takes a queue or exchange plus an ordered list of bindings and drives them
// onto its Operator: the source is declared first, then every binding's target exchange is
// declared and bound, one binding at a time. The first failing step stops the sequence and
// its error is returned unchanged. Steps that already succeeded stay applied on the broker;
// nothing is rolled back.
//
// Example:
//
//	events := contracts.NewExchange("events", contracts.TopicExchange{})
//	configurator := routing.NewConfigurator(operator)
//	err := configurator.BindQueue(ctx, contracts.NewQueue("orders"), []contracts.QueueBind{
//		contracts.NewQueueBind(events, "order.created"),
//		contracts.NewQueueBind(events, "order.cancelled"),
//	})
package routing
