package model

// ControlOp is an operation carried on a wsctl:* control topic.
type ControlOp string

const (
	ControlSubscribe   ControlOp = "subscribe"
	ControlUnsubscribe ControlOp = "unsubscribe"
	ControlReplace     ControlOp = "replace"
)

// ControlMessage is the payload published on wsctl:ticks / wsctl:quotes to
// drive an ingestion process's WebSocket subscriptions.
type ControlMessage struct {
	Op      ControlOp  `json:"op"`
	Channel ChannelTag `json:"channel"`
	Symbols []string   `json:"symbols"`
}

// StateAssertion is the payload shape published on state:evaluator,
// state:override, state:chart, and produced by the db source's change
// stream: either a single (symbol, state) pair or a batch of them.
type StateAssertion struct {
	Symbol string           `json:"symbol,omitempty"`
	State  string           `json:"state,omitempty"`
	Batch  []StateAssertion `json:"batch,omitempty"`
}
