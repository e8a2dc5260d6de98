package model

// Status 文件与标签共用的处理状态
type Status string

const (
	StatusCreated    Status = "CR" // 文件已创建 / 标签已请求
	StatusDownloaded Status = "D"
	StatusCompleted  Status = "C"
	StatusError      Status = "E"
)

// StatusRequested is the tag-side name for CR.
const StatusRequested = StatusCreated

// IsTerminal reports whether no further extraction is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusDownloaded, StatusCompleted, StatusError:
		return true
	}
	return false
}

var fileTransitions = map[Status][]Status{
	StatusCreated:    {StatusDownloaded, StatusError},
	StatusDownloaded: {StatusCompleted, StatusError},
}

var tagTransitions = map[Status][]Status{
	StatusCreated: {StatusCompleted, StatusError},
}

// CanTransitionFile reports whether a file may move from s to next.
// Re-applying the current status is allowed so redelivered results stay harmless.
func (s Status) CanTransitionFile(next Status) bool {
	return s == next || contains(fileTransitions[s], next)
}

// CanTransitionTag reports whether a tag may move from s to next.
func (s Status) CanTransitionTag(next Status) bool {
	return s == next || contains(tagTransitions[s], next)
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
