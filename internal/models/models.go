package models

import "time"

// Moderation status of a pass record. A record is editable only while
// it is in StatusNew.
const (
	StatusNew      = "new"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// User represents the person who submitted a pass record. Users are
// identified by email and are never duplicated: a second submission with
// the same email reuses the existing row.
type User struct {
	ID    int64  `json:"-"`
	Email string `json:"email"`
	Fam   string `json:"fam"`
	Name  string `json:"name"`
	Otc   string `json:"otc"`
	Phone string `json:"phone"`
}

// Coords represents the geographic position of a pass. Each pass record
// owns exactly one coords row.
type Coords struct {
	ID        int64   `json:"-"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    int     `json:"height"`
}

// Level holds the seasonal difficulty ratings of a pass. Each field is a
// small category code ("1A".."3B") or nil when the season was not rated.
type Level struct {
	Winter *string `json:"winter,omitempty"`
	Summer *string `json:"summer,omitempty"`
	Autumn *string `json:"autumn,omitempty"`
	Spring *string `json:"spring,omitempty"`
}

// Image is a stored photograph attached to a pass record. The bytes live
// in the blob store; Path is the stable reference returned by it.
type Image struct {
	ID        int64     `json:"-"`
	DateAdded time.Time `json:"date_added"`
	Path      string    `json:"img"`
	Title     string    `json:"title"`
}

// Pereval is the central entity: one mountain-pass crossing submission.
type Pereval struct {
	ID          int64      `json:"id"`
	DateAdded   time.Time  `json:"date_added"`
	BeautyTitle string     `json:"beauty_title"`
	Title       string     `json:"title"`
	OtherTitles string     `json:"other_titles"`
	Connect     string     `json:"connect"`
	AddTime     *time.Time `json:"add_time,omitempty"`
	User        User       `json:"user"`
	Coords      Coords     `json:"coords"`
	Level       Level      `json:"level"`
	Status      string     `json:"status"`
	Images      []Image    `json:"images"`
}

// ImageUpload is one inbound image: decoded bytes plus a caption.
type ImageUpload struct {
	Data  []byte
	Title string
}

// Submission is a fully validated create payload handed to the store.
// Image bytes are already decoded from their wire encoding.
type Submission struct {
	BeautyTitle string
	Title       string
	OtherTitles string
	Connect     string
	AddTime     *time.Time
	User        User
	Coords      Coords
	Level       Level
	Images      []ImageUpload
}

// PerevalPatch carries the fields an owner may edit while a record is
// still in StatusNew. The patch replaces the stored values wholesale:
// a nil AddTime or an empty Level clears what was there before.
type PerevalPatch struct {
	BeautyTitle string     `json:"beauty_title"`
	Title       string     `json:"title"`
	OtherTitles string     `json:"other_titles"`
	Connect     string     `json:"connect"`
	AddTime     *time.Time `json:"add_time,omitempty"`
	Level       Level      `json:"level"`
}

// UpdateOutcome is the three-state result of a status-gated write.
type UpdateOutcome int

const (
	// UpdateNotFound means no record exists with the given id.
	UpdateNotFound UpdateOutcome = iota
	// UpdateRefused means the record exists but is no longer editable.
	UpdateRefused
	// UpdateApplied means the write went through.
	UpdateApplied
)

func (o UpdateOutcome) String() string {
	switch o {
	case UpdateNotFound:
		return "not found"
	case UpdateRefused:
		return "refused"
	case UpdateApplied:
		return "applied"
	default:
		return "unknown"
	}
}
