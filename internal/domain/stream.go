package domain

// Channel is a Twitch channel as returned by search or lookup. Name is the
// login used in token and manifest URLs; DisplayName is for people.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	Live        bool   `json:"live"`
}

func (c Channel) Title() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// ChannelToken authorizes one manifest fetch for one channel.
type ChannelToken struct {
	Token     string `json:"token"`
	Signature string `json:"sig"`
}

type LiveStreamVariant struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
