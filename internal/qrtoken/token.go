// Package qrtoken encodes and decodes the self-contained token printed in a
// student's attendance QR code.
//
// The token is a JSON object:
//
//	{"studentId":"...","email":"...","courseId":"...","issuedAt":"2024-12-15T20:53:23Z"}
//
// studentId and courseId are required; email and issuedAt are optional.
package qrtoken

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned when scanned text is not a valid payload.
	ErrMalformed = errors.New("malformed qr payload")

	errMissingStudent = errors.New("student id and email are required")
	errMissingCourse  = errors.New("course id is required")
)

// Payload is the decoded content of a scanned QR code.
type Payload struct {
	StudentID string
	CourseID  string
	Email     string
	IssuedAt  *time.Time
}

// Holder is the minimal student identity needed to issue a token.
type Holder struct {
	StudentID string
	Email     string
}

// wire is the JSON shape. Timestamp is the key written by the legacy web
// client and is read as an alias of IssuedAt.
type wire struct {
	StudentID any    `json:"studentId"`
	CourseID  any    `json:"courseId"`
	Email     any    `json:"email,omitempty"`
	IssuedAt  string `json:"issuedAt,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Encode produces the token for a student and course, stamped with now.
func Encode(h Holder, courseID string, now time.Time) (string, error) {
	if strings.TrimSpace(h.StudentID) == "" || strings.TrimSpace(h.Email) == "" {
		return "", errMissingStudent
	}
	if strings.TrimSpace(courseID) == "" {
		return "", errMissingCourse
	}
	b, err := json.Marshal(wire{
		StudentID: h.StudentID,
		CourseID:  courseID,
		Email:     h.Email,
		IssuedAt:  now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return string(b), nil
}

// Decode parses raw scanner text. It performs no lookups; every failure is
// reported as ErrMalformed.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var w wire
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	studentID, ok := w.StudentID.(string)
	if !ok || strings.TrimSpace(studentID) == "" {
		return Payload{}, fmt.Errorf("%w: studentId must be a non-empty string", ErrMalformed)
	}
	courseID, ok := w.CourseID.(string)
	if !ok || strings.TrimSpace(courseID) == "" {
		return Payload{}, fmt.Errorf("%w: courseId must be a non-empty string", ErrMalformed)
	}

	p := Payload{
		StudentID: strings.TrimSpace(studentID),
		CourseID:  strings.TrimSpace(courseID),
	}
	if w.Email != nil {
		email, ok := w.Email.(string)
		if !ok {
			return Payload{}, fmt.Errorf("%w: email must be a string", ErrMalformed)
		}
		p.Email = email
	}

	issued := w.IssuedAt
	if issued == "" {
		issued = w.Timestamp
	}
	if issued != "" {
		t, err := time.Parse(time.RFC3339Nano, issued)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: issuedAt: %v", ErrMalformed, err)
		}
		t = t.UTC()
		p.IssuedAt = &t
	}
	return p, nil
}
