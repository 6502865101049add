package goCartes

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/MrEthical07/goCartes/internal/events"
	"github.com/MrEthical07/goCartes/session"
)

// User is the authenticated operator as returned by the backend.
type User = session.User

// Role is the backend role name of a [User].
type Role = session.Role

const (
	RoleAdministrator = session.RoleAdministrator
	RoleSupervisor    = session.RoleSupervisor
	RoleChief         = session.RoleChief
	RoleOperator      = session.RoleOperator
)

/*
====================================
EVENTS
====================================
*/

// Event is a session notification delivered to subscribers.
type Event = events.Event

// EventType names an [Event].
type EventType = events.Type

const (
	EventLogin            = events.TypeLogin
	EventLogout           = events.TypeLogout
	EventSessionExpired   = events.TypeSessionExpired
	EventPermissionDenied = events.TypePermissionDenied
	EventNetworkError     = events.TypeNetworkError
	EventTimeout          = events.TypeTimeout
)

// EventSink receives every event in emission order.
type EventSink = events.Sink

/*
====================================
CARTES
====================================
*/

// Column names of a carte record as stored by the backend.
const (
	ColumnEnrolmentPlace  = "LIEU D'ENROLEMENT"
	ColumnWithdrawalSite  = "SITE DE RETRAIT"
	ColumnStorage         = "RANGEMENT"
	ColumnLastName        = "NOM"
	ColumnFirstNames      = "PRENOMS"
	ColumnBirthDate       = "DATE DE NAISSANCE"
	ColumnBirthPlace      = "LIEU NAISSANCE"
	ColumnContact         = "CONTACT"
	ColumnDelivery        = "DELIVRANCE"
	ColumnDeliveryContact = "CONTACT DE RETRAIT"
	ColumnDeliveryDate    = "DATE DE DELIVRANCE"
	ColumnID              = "ID"
)

var knownColumns = map[string]struct{}{
	ColumnEnrolmentPlace:  {},
	ColumnWithdrawalSite:  {},
	ColumnStorage:         {},
	ColumnLastName:        {},
	ColumnFirstNames:      {},
	ColumnBirthDate:       {},
	ColumnBirthPlace:      {},
	ColumnContact:         {},
	ColumnDelivery:        {},
	ColumnDeliveryContact: {},
	ColumnDeliveryDate:    {},
	ColumnID:              {},
}

// Carte is one ID card record. Columns the backend adds beyond the known set are
// kept in Extra and written back unchanged.
type Carte struct {
	EnrolmentPlace  string
	WithdrawalSite  string
	Storage         string
	LastName        string
	FirstNames      string
	BirthDate       string
	BirthPlace      string
	Contact         string
	Delivery        string
	DeliveryContact string
	DeliveryDate    string
	// ID is 0 for a carte not yet stored.
	ID    int
	Extra map[string]json.RawMessage
}

// Delivered reports whether the card has been handed over.
func (c Carte) Delivered() bool {
	return c.Delivery != "" || c.DeliveryDate != ""
}

func (c Carte) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+12)
	for k, v := range c.Extra {
		if _, known := knownColumns[k]; !known {
			out[k] = v
		}
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(ColumnEnrolmentPlace, c.EnrolmentPlace)
	set(ColumnWithdrawalSite, c.WithdrawalSite)
	set(ColumnStorage, c.Storage)
	out[ColumnLastName] = c.LastName
	out[ColumnFirstNames] = c.FirstNames
	set(ColumnBirthDate, c.BirthDate)
	set(ColumnBirthPlace, c.BirthPlace)
	set(ColumnContact, c.Contact)
	set(ColumnDelivery, c.Delivery)
	set(ColumnDeliveryContact, c.DeliveryContact)
	set(ColumnDeliveryDate, c.DeliveryDate)
	if c.ID != 0 {
		out[ColumnID] = c.ID
	}
	return json.Marshal(out)
}

func (c *Carte) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Carte{}

	fields := map[string]*string{
		ColumnEnrolmentPlace:  &c.EnrolmentPlace,
		ColumnWithdrawalSite:  &c.WithdrawalSite,
		ColumnStorage:         &c.Storage,
		ColumnLastName:        &c.LastName,
		ColumnFirstNames:      &c.FirstNames,
		ColumnBirthDate:       &c.BirthDate,
		ColumnBirthPlace:      &c.BirthPlace,
		ColumnContact:         &c.Contact,
		ColumnDelivery:        &c.Delivery,
		ColumnDeliveryContact: &c.DeliveryContact,
		ColumnDeliveryDate:    &c.DeliveryDate,
	}
	for k, v := range raw {
		if dst, ok := fields[k]; ok {
			*dst = looseString(v)
			continue
		}
		if k == ColumnID {
			id, err := strconv.Atoi(looseString(v))
			if err == nil {
				c.ID = id
			}
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[k] = v
	}
	return nil
}

// looseString reads a JSON scalar as text. Spreadsheet imports send contacts and
// dates as numbers as often as strings.
func looseString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

/*
====================================
STATISTICS
====================================
*/

// GlobalStatistics are inventory-wide counts.
type GlobalStatistics struct {
	Total     int `json:"total"`
	Withdrawn int `json:"retires"`
	Remaining int `json:"restants"`
}

// WithdrawalPercent is the rounded share of withdrawn cards, 0 for an empty inventory.
func (s GlobalStatistics) WithdrawalPercent() int {
	return withdrawalPercent(s.Withdrawn, s.Total)
}

// SiteStatistics are the counts of one withdrawal site.
type SiteStatistics struct {
	Site      string `json:"site"`
	Total     int    `json:"total"`
	Withdrawn int    `json:"retires"`
	Remaining int    `json:"restants"`
}

// WithdrawalPercent is the rounded share of withdrawn cards, 0 when the site is empty.
func (s SiteStatistics) WithdrawalPercent() int {
	return withdrawalPercent(s.Withdrawn, s.Total)
}

func withdrawalPercent(withdrawn, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(withdrawn) / float64(total) * 100))
}

// TotalStatistics is the summary served under /cartes/statistiques/total.
type TotalStatistics struct {
	Total     int            `json:"total"`
	Withdrawn int            `json:"retires"`
	Available int            `json:"disponibles"`
	BySite    map[string]int `json:"parSite"`
}

// Statistics groups the two dashboard reads.
type Statistics struct {
	Global GlobalStatistics
	Sites  []SiteStatistics
}

/*
====================================
SEARCH
====================================
*/

// SearchCriteria filters /inventaire/recherche. Empty fields are not sent.
type SearchCriteria struct {
	LastName       string
	FirstName      string
	Contact        string
	WithdrawalSite string
	BirthPlace     string
	BirthDate      string
	Storage        string
	Page           int
	Limit          int
}

// Query encodes c with the backend parameter names.
func (c SearchCriteria) Query() url.Values {
	q := url.Values{}
	add := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	add("nom", c.LastName)
	add("prenom", c.FirstName)
	add("contact", c.Contact)
	add("siteRetrait", c.WithdrawalSite)
	add("lieuNaissance", c.BirthPlace)
	add("dateNaissance", c.BirthDate)
	add("rangement", c.Storage)
	if c.Page > 0 {
		q.Set("page", strconv.Itoa(c.Page))
	}
	if c.Limit > 0 {
		q.Set("limit", strconv.Itoa(c.Limit))
	}
	return q
}

// CartesPage is one page of cartes, from a listing or a search.
type CartesPage struct {
	Cartes     []Carte `json:"cartes"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
	Limit      int     `json:"limit"`
}

// SearchResult is the reply of [Client.SearchCartes].
type SearchResult = CartesPage

/*
====================================
IMPORT / ACCOUNTS
====================================
*/

// ImportRowError reports one rejected spreadsheet row.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult is the backend's summary of a spreadsheet import.
type ImportResult struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Imported int              `json:"imported"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors,omitempty"`
	Duration time.Duration    `json:"-"`
}

// RegisterRequest creates an operator account.
type RegisterRequest struct {
	FullName string `json:"NomComplet"`
	Username string `json:"NomUtilisateur"`
	Email    string `json:"Email"`
	Agency   string `json:"Agence"`
	Role     Role   `json:"Role"`
	Password string `json:"MotDePasse"`
}

// ResetPasswordRequest asks the backend to reset an operator's password.
type ResetPasswordRequest struct {
	Username string `json:"NomUtilisateur"`
	Email    string `json:"Email,omitempty"`
}

// ProfileUpdate changes the current operator's own record. Empty fields are kept.
type ProfileUpdate struct {
	FullName        string `json:"NomComplet,omitempty"`
	Email           string `json:"Email,omitempty"`
	Agency          string `json:"Agence,omitempty"`
	CurrentPassword string `json:"AncienMotDePasse,omitempty"`
	NewPassword     string `json:"NouveauMotDePasse,omitempty"`
}
