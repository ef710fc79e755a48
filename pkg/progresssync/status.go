package progresssync

// Status 同步状态机的当前状态
type Status string

const (
	StatusIdle          Status = "idle"
	StatusLoading       Status = "loading"
	StatusSaving        Status = "saving"
	StatusSaved         Status = "saved"
	StatusOfflineQueued Status = "offline-queued"
	StatusError         Status = "error"
)

// StatusUpdate 状态快照，Err 仅在 StatusError 时有值
type StatusUpdate struct {
	Status Status `json:"status"`
	Err    string `json:"error,omitempty"`
}
