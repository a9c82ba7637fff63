package crossref

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

type journalsResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []journalItem `json:"items"`
	} `json:"message"`
}

type journalItem struct {
	Title     string       `json:"title"`
	Publisher string       `json:"publisher"`
	ISSN      []string     `json:"ISSN"`
	ISSNType  []feeds.ISSN `json:"issn-type"`
	Counts    struct {
		CurrentDOIs int `json:"current-dois"`
	} `json:"counts"`
}

type worksResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Work `json:"items"`
	} `json:"message"`
}

// Work is the subset of a Crossref work record that paper-feeds keeps.
type Work struct {
	DOI             string     `json:"DOI"`
	URL             string     `json:"URL"`
	Title           StringList `json:"title"`
	Subtitle        StringList `json:"subtitle"`
	ShortTitle      StringList `json:"short-title"`
	Author          []Author   `json:"author"`
	Type            string     `json:"type"`
	Abstract        string     `json:"abstract"`
	Publisher       string     `json:"publisher"`
	EditionNumber   string     `json:"edition-number"`
	Issue           string     `json:"issue"`
	Volume          string     `json:"volume"`
	Page            string     `json:"page"`
	Created         *Date      `json:"created"`
	Indexed         *Date      `json:"indexed"`
	Deposited       *Date      `json:"deposited"`
	Posted          *Date      `json:"posted"`
	Published       *Date      `json:"published"`
	Issued          *Date      `json:"issued"`
	Accepted        *Date      `json:"accepted"`
	ContentCreated  *Date      `json:"content-created"`
	ContentUpdated  *Date      `json:"content-updated"`
	PublishedPrint  *Date      `json:"published-print"`
	PublishedOnline *Date      `json:"published-online"`
	GroupTitle      string     `json:"group-title"`
	ReferenceCount  *int       `json:"reference-count"`
	ReferencesCount *int       `json:"references-count"`
	Subject         []string   `json:"subject"`
	Source          string     `json:"source"`
}

// Author is one contributor entry of a work.
type Author struct {
	Given    string `json:"given"`
	Family   string `json:"family"`
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
}

// Date is Crossref's partial date object. Any subset of the fields may be set.
type Date struct {
	DateParts json.RawMessage `json:"date-parts"`
	DateTime  string          `json:"date-time"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// StringList accepts either a JSON string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode string: %w", err)
		}
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*s = list
	return nil
}
