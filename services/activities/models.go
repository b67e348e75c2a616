package activities

// Activity is an extracurricular activity students can join.
type Activity struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Name            string `gorm:"uniqueIndex;not null"`
	Description     string `gorm:"not null"`
	Schedule        string `gorm:"not null"`
	MaxParticipants int    `gorm:"not null"`

	Participants []Participant `gorm:"foreignKey:ActivityID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Activity) TableName() string { return "activities" }

// Participant is one student signed up for one activity.
type Participant struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Email      string `gorm:"not null;uniqueIndex:uq_participant_email_activity"`
	ActivityID int64  `gorm:"not null;index;uniqueIndex:uq_participant_email_activity"`
}

func (Participant) TableName() string { return "participants" }

// View is the public representation of an activity.
type View struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

func (a Activity) view() View {
	emails := make([]string, 0, len(a.Participants))
	for _, p := range a.Participants {
		emails = append(emails, p.Email)
	}
	return View{
		Description:     a.Description,
		Schedule:        a.Schedule,
		MaxParticipants: a.MaxParticipants,
		Participants:    emails,
	}
}
