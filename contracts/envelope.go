package contracts

// PublishFlags are per-publish delivery options. The zero value has every flag off.
type PublishFlags struct {
	// Persist asks the broker to write the message to disk
	Persist bool
	// Mandatory returns the message when no queue is bound for its routing key
	Mandatory bool
	// Immediate returns the message when no consumer is ready to take it
	Immediate bool
}

// OutboundPackage is a message to be published
type OutboundPackage struct {
	Destination  Destination
	PublishFlags PublishFlags
	Headers      map[string]string
	Content      []byte
}

// NewOutboundPackage wraps content for publishing to destination with default flags and no
// headers
func NewOutboundPackage(content []byte, destination Destination) OutboundPackage {
	return OutboundPackage{
		Destination:  destination,
		PublishFlags: PublishFlags{},
		Headers:      map[string]string{},
		Content:      content,
	}
}

// InboundPackage is a message delivered by a transport. Exactly one of Ack, Nack or Reject
// may succeed per package.
type InboundPackage interface {
	ID() string
	Headers() map[string]string
	Content() []byte

	Ack() error
	Nack(policy NackPolicy) error
	Reject(policy NackPolicy) error
}

// NackPolicy is a negative acknowledgment decision. It can only be built with Requeue or
// DontRequeue so the requeue choice is explicit at every call site.
type NackPolicy struct {
	requeue   bool
	reason    string
	hasReason bool
}

// Requeue returns a policy that puts the message back on its queue
func Requeue() NackPolicy {
	return NackPolicy{requeue: true}
}

// DontRequeue returns a policy that drops or dead-letters the message
func DontRequeue() NackPolicy {
	return NackPolicy{requeue: false}
}

// WithReason returns a copy of p carrying reason. The requeue decision is unchanged.
func (p NackPolicy) WithReason(reason string) NackPolicy {
	p.reason = reason
	p.hasReason = true
	return p
}

// ShouldRequeue reports whether the message goes back on its queue
func (p NackPolicy) ShouldRequeue() bool {
	return p.requeue
}

// Reason returns the reason attached with WithReason, if any
func (p NackPolicy) Reason() (string, bool) {
	return p.reason, p.hasReason
}
