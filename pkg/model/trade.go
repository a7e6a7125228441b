package model

import "time"

// Requester identifies who submitted a request on the wire.
type Requester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubmitRequest is the body of POST /api/v1/requests.
//
// At most one payload source is used: SourcePath (a record file inside the
// server's distribution or inbox folder, moved to the processed folder once
// finished), Record (base64 of a
// raw record), PoolKey (an item of the distribution pool), or none, in which
// case link and anonymous requests draw the next pool item.
type SubmitRequest struct {
	Requester  Requester `json:"requester"`
	Kind       string    `json:"kind"`
	Tier       *uint32   `json:"tier,omitempty"`
	Code       *int      `json:"code,omitempty"`
	Record     []byte    `json:"record,omitempty"`
	PoolKey    string    `json:"pool_key,omitempty"`
	SourcePath string    `json:"source_path,omitempty"`
}

// DistributeRequest is the body of POST /api/v1/pool/next.
type DistributeRequest struct {
	Requester Requester `json:"requester"`
	Tier      *uint32   `json:"tier,omitempty"`
}

// Submitted is the response to a successful submission.
type Submitted struct {
	Requester    Requester `json:"requester"`
	Kind         string    `json:"kind"`
	Code         int       `json:"code"`
	Synchronized bool      `json:"synchronized"`
	Payload      string    `json:"payload,omitempty"`
	Position     int       `json:"position"`
}

// QueueEntry is one pending request as shown by the queue listing.
type QueueEntry struct {
	Position  int       `json:"position"`
	Requester Requester `json:"requester"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Summary   string    `json:"summary"`
}

// QueueStatus describes where a requester currently stands.
type QueueStatus struct {
	Requester Requester    `json:"requester"`
	State     RequestState `json:"state"`
	Position  int          `json:"position,omitempty"`
	Total     int          `json:"total"`
}

// PoolInfo summarises the distribution pool.
type PoolInfo struct {
	Folder   string   `json:"folder"`
	Size     int      `json:"size"`
	Shuffled bool     `json:"shuffled"`
	Keys     []string `json:"keys"`
}

// HistoryEvent is a persisted lifecycle notification.
type HistoryEvent struct {
	ID            string    `json:"id"`
	RequesterID   string    `json:"requester_id"`
	RequesterName string    `json:"requester_name"`
	Kind          string    `json:"kind"`
	Code          int       `json:"code"`
	Event         string    `json:"event"`
	Payload       string    `json:"payload,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Routine       string    `json:"routine,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
