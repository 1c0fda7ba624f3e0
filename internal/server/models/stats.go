package models

// UserChatCount is the number of transcript entries owned by one account.
type UserChatCount struct {
	Account   string `json:"account"`
	ChatCount int64  `json:"chat_count"`
}

// Stats is the administrative usage summary.
type Stats struct {
	TotalUsers int64           `json:"total_users"`
	TotalChats int64           `json:"total_chats"`
	UserStats  []UserChatCount `json:"user_stats"`
}
