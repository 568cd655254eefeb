package types

type StatusType int32

const (
	None     StatusType = 0
	Running  StatusType = 2
	Fatal    StatusType = 9
	Finished StatusType = 10
)

func (s StatusType) String() string {
	switch s {
	case Running:
		return "running"
	case Fatal:
		return "fatal"
	case Finished:
		return "finished"
	}
	return "none"
}

func (s StatusType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
