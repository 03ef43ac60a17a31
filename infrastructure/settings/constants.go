package settings

const (
	// MaxSegmentSize is the largest datagram the node sends or accepts.
	MaxSegmentSize = 1500

	// QueueCapacity bounds the orchestrator's internal queues (timer events,
	// inbound datagrams, outbound plaintext). Senders block when a queue is
	// full; nothing is dropped inside the node.
	QueueCapacity = 1024
)
