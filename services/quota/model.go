package quota

type Status struct {
	VideosWatchedToday int    `json:"videosWatchedToday"`
	Remaining          int    `json:"remaining"`
	Allowed            bool   `json:"allowed"`
	Limit              int    `json:"limit"`
	DayKey             string `json:"dayKey"`
}

func NewStatus(watched, limit int, dayKey string) Status {
	remaining := limit - watched
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		VideosWatchedToday: watched,
		Remaining:          remaining,
		Allowed:            watched < limit,
		Limit:              limit,
		DayKey:             dayKey,
	}
}
