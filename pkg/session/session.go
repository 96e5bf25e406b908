package session

import "time"

type Status string

const (
	StatusCollecting Status = "collecting"
	StatusReady      Status = "ready"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// ImageRef describes one accepted image. Name is the stored filename inside
// the user's upload directory; SeqNo is the arrival position starting at 1.
type ImageRef struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name,omitempty"`
	SeqNo        int       `json:"seq_no"`
	Size         int64     `json:"size"`
	AddedAt      time.Time `json:"added_at"`
}

// Session is the collection state for one user key.
type Session struct {
	UserKey       string     `json:"user_key"`
	Channel       string     `json:"channel"`
	ChatID        string     `json:"chat_id"`
	Images        []ImageRef `json:"images"`
	Status        Status     `json:"status"`
	BatchToken    string     `json:"batch_token,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastTriggerAt time.Time  `json:"last_trigger_at,omitempty"`
}

// NextSeqNo returns the arrival position the next accepted image gets.
func (s *Session) NextSeqNo() int {
	if len(s.Images) == 0 {
		return 1
	}
	return s.Images[len(s.Images)-1].SeqNo + 1
}

func (s *Session) ImageCount() int {
	return len(s.Images)
}

// clone returns a copy safe to hand outside the store's lock.
func (s Session) clone() Session {
	images := make([]ImageRef, len(s.Images))
	copy(images, s.Images)
	s.Images = images
	return s
}
