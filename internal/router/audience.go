package router

type audienceKind int

const (
	audienceAll audienceKind = iota
	audienceAllExcept
	audienceOnly
)

// Audience 描述一次广播的受众范围，由路由选定、广播通道执行。
type Audience struct {
	kind   audienceKind
	connID string
}

// All 投递给房间里的所有连接。
func All() Audience { return Audience{kind: audienceAll} }

// AllExcept 投递给除 connID 之外的所有连接。
func AllExcept(connID string) Audience {
	return Audience{kind: audienceAllExcept, connID: connID}
}

// Only 只投递给 connID 一个连接。
func Only(connID string) Audience {
	return Audience{kind: audienceOnly, connID: connID}
}

// Includes 判断 connID 是否在受众范围内。
func (a Audience) Includes(connID string) bool {
	switch a.kind {
	case audienceAllExcept:
		return connID != a.connID
	case audienceOnly:
		return connID == a.connID
	default:
		return true
	}
}
