package messaging

// UserRegistered is published when a register call resolves a user.
type UserRegistered struct {
	UserUUID string `json:"user_uuid"`
	Status   string `json:"status"`
	Created  bool   `json:"created"`
	At       int64  `json:"at"`
}

// CreditsDeducted is published after prompt credits are charged.
type CreditsDeducted struct {
	UserUUID  string `json:"user_uuid"`
	Amount    int    `json:"amount"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason"` // "upload" or "graph"
	At        int64  `json:"at"`
}

// UploadProcessed is published once an upload request has been analyzed.
type UploadProcessed struct {
	UserUUID string   `json:"user_uuid"`
	Files    []string `json:"files"`
	Failed   int      `json:"failed"`
	Credits  int      `json:"credits"`
	At       int64    `json:"at"`
}
