package model

// Stats is the organizer dashboard summary.  TotalRevenue is formatted with
// exactly two decimal places.
type Stats struct {
	TotalEvents         int                     `json:"total_events"`
	PublishedEvents     int                     `json:"published_events"`
	UpcomingEvents      int                     `json:"upcoming_events"`
	TotalRegistrations  int                     `json:"total_registrations"`
	TotalRevenue        string                  `json:"total_revenue"`
	RecentRegistrations []RegistrationWithEvent `json:"recent_registrations"`
}
