package rabbitmq

import (
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declaration arguments the broker only accepts as numbers or booleans. Every other
// argument, such as x-dead-letter-routing-key or alternate-exchange, must stay a string
// even when its value looks numeric.
var (
	numericArguments = map[string]struct{}{
		"x-message-ttl":                   {},
		"x-expires":                       {},
		"x-max-length":                    {},
		"x-max-length-bytes":              {},
		"x-max-priority":                  {},
		"x-delivery-limit":                {},
		"x-quorum-initial-group-size":     {},
		"x-stream-max-segment-size-bytes": {},
		"x-consumer-timeout":              {},
	}
	booleanArguments = map[string]struct{}{
		"x-single-active-consumer": {},
	}
)

// declareTable converts declaration arguments to an amqp.Table. Known numeric and boolean
// arguments are converted when their value parses; anything else is sent as a string.
func declareTable(arguments map[string]string) amqp.Table {
	if len(arguments) == 0 {
		return nil
	}

	table := make(amqp.Table, len(arguments))
	for k, v := range arguments {
		table[k] = v
		if _, ok := numericArguments[k]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				table[k] = n
			}
			continue
		}
		if _, ok := booleanArguments[k]; ok {
			if b, err := strconv.ParseBool(v); err == nil {
				table[k] = b
			}
		}
	}
	return table
}

// stringTable converts headers or binding arguments to an amqp.Table verbatim
func stringTable(values map[string]string) amqp.Table {
	if len(values) == 0 {
		return nil
	}

	table := make(amqp.Table, len(values))
	for k, v := range values {
		table[k] = v
	}
	return table
}

// tableStrings renders every value of table as a string
func tableStrings(table amqp.Table) map[string]string {
	values := make(map[string]string, len(table))
	for k, v := range table {
		switch tv := v.(type) {
		case string:
			values[k] = tv
		case []byte:
			values[k] = string(tv)
		default:
			values[k] = fmt.Sprint(tv)
		}
	}
	return values
}

// mergeArguments returns base overlaid with override. Neither map is modified.
func mergeArguments(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
