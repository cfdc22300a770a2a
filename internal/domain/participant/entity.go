package participant

// Participant is a connected voter. It lives only as long as its connection.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
