package models

// Player is a connected attendee. Wallet is the stable engine-supplied user id.
type Player struct {
	Wallet   string `json:"wallet"`
	Name     string `json:"name"`
	Position *Vec3  `json:"position,omitempty"`
}

// PlayerState is the replicated ban and host list record.
type PlayerState struct {
	BanList  []string `json:"ban_list"`
	HostList []string `json:"host_list"`
}
