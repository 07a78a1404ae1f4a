package domain

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ContactRecord is one logged contact decoded from a logger datagram.
type ContactRecord struct {
	Call string
	Band string
}

func (c ContactRecord) String() string {
	return fmt.Sprintf("%s (%s)", c.Call, c.Band)
}

// EnrichedContact is a contact augmented with the contacted station's location.
// (0, 0) means the location is unknown.
type EnrichedContact struct {
	Call      string  `json:"call"`
	Band      string  `json:"band"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (e EnrichedContact) String() string {
	return fmt.Sprintf("%s (%s) [%g %g]", e.Call, e.Band, e.Latitude, e.Longitude)
}

// UnknownLocation reports whether both coordinates hold the 0.0 sentinel.
func (e EnrichedContact) UnknownLocation() bool {
	return e.Latitude == 0 && e.Longitude == 0
}

// Point is a WGS-84 coordinate pair, used for the home station.
type Point struct {
	Latitude  float64 `json:"latitude" koanf:"latitude,omitempty"`
	Longitude float64 `json:"longitude" koanf:"longitude,omitempty"`
}

// contactInfo is the wire shape of a logger datagram. Call and band are
// collected as slices so a repeated element is caught rather than overwritten.
type contactInfo struct {
	XMLName xml.Name `xml:"contactinfo"`
	Call    []string `xml:"call" validate:"len=1,dive,required"`
	Band    []string `xml:"band" validate:"len=1"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ParseContactRecord decodes a single datagram payload into a ContactRecord.
// The payload must hold exactly one <contactinfo> document with one non-empty
// <call> and one <band>; anything else fails with ErrMalformedContact.
func ParseContactRecord(payload []byte) (ContactRecord, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return ContactRecord{}, fmt.Errorf("%w: empty payload", ErrMalformedContact)
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	var info contactInfo
	if err := dec.Decode(&info); err != nil {
		return ContactRecord{}, fmt.Errorf("%w: %w", ErrMalformedContact, err)
	}
	if err := expectEnd(dec); err != nil {
		return ContactRecord{}, fmt.Errorf("%w: %w", ErrMalformedContact, err)
	}
	for i := range info.Call {
		info.Call[i] = strings.TrimSpace(info.Call[i])
	}

	if err := getValidator().Struct(&info); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ContactRecord{}, fmt.Errorf("%w: field %s failed %q", ErrMalformedContact,
				strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return ContactRecord{}, fmt.Errorf("%w: %w", ErrMalformedContact, err)
	}

	return ContactRecord{
		Call: info.Call[0],
		Band: strings.TrimSpace(info.Band[0]),
	}, nil
}

// expectEnd accepts only whitespace, comments, and processing instructions
// after the root element.
func expectEnd(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return errors.New("trailing content after </contactinfo>")
			}
		default:
			return errors.New("trailing content after </contactinfo>")
		}
	}
}
