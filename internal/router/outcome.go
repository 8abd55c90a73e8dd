package router

// DropReason 标识事件被丢弃的原因，空值表示未丢弃。
type DropReason string

const (
	DropBadPayload     DropReason = "bad_payload"
	DropEmptyText      DropReason = "empty_text"
	DropBadMessageID   DropReason = "bad_message_id"
	DropEmptyReader    DropReason = "empty_reader"
	DropUnknownEvent   DropReason = "unknown_event"
	DropUnknownMessage DropReason = "unknown_message"
	DropStoreError     DropReason = "store_error"
)

// Outcome 让路由的接受/丢弃决策对调用方和测试可见，
// 而不是只能靠"没有副作用"来推断。
type Outcome struct {
	Event  string
	Reason DropReason
}

func (o Outcome) Accepted() bool { return o.Reason == "" }

func accepted(event string) Outcome { return Outcome{Event: event} }

func dropped(event string, reason DropReason) Outcome {
	return Outcome{Event: event, Reason: reason}
}
