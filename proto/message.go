// Package proto defines the radio wire format shared by commanders and targets.
//
// Every datagram is a single short string: one tag character followed by
// comma-separated fields, e.g. "S,2,1" or "D,3,Temp,1000,21.5,0". Fields cannot
// contain the delimiter; there is no escaping. The codec never fragments: the
// transport bounds datagram length and callers split work across messages.
package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tag is the leading character of every datagram.
type Tag byte

const (
	TagJoinRequest      Tag = 'J'
	TagStartLogging     Tag = 'S'
	TagBecomeTarget     Tag = 'T'
	TagGetID            Tag = 'G'
	TagDataStream       Tag = 'D'
	TagDataStreamFinish Tag = 'F'
)

// Delimiter separates the tag and every field on the wire.
const Delimiter = ","

const (
	UnassignedID = -1 // every device starts here
	CommanderID  = 0  // reserved for the commander
)

var (
	ErrEmptyDatagram    = errors.New("empty datagram")
	ErrUnknownTag       = errors.New("unknown tag")
	ErrMalformed        = errors.New("malformed message")
	ErrDelimiterInField = errors.New("field contains delimiter")
)

func (t Tag) String() string {
	switch t {
	case TagJoinRequest:
		return "JoinRequest"
	case TagStartLogging:
		return "StartLogging"
	case TagBecomeTarget:
		return "BecomeTarget"
	case TagGetID:
		return "GetId"
	case TagDataStream:
		return "DataStream"
	case TagDataStreamFinish:
		return "DataStreamFinish"
	}
	return fmt.Sprintf("Tag(%q)", byte(t))
}

// Message is the decoded form of a datagram. The concrete types below form a
// closed set; handlers match them with a type switch.
type Message interface {
	Tag() Tag
	Fields() []string
}

type JoinRequest struct{}

// StartLogging is the job header: Count DataStream fragments follow.
type StartLogging struct {
	Count      int
	StreamBack bool
}

type BecomeTarget struct {
	ID int
}

// GetID is a registry poll when HasID is false (commander to targets) and a
// poll reply carrying the target's id otherwise.
type GetID struct {
	ID    int
	HasID bool
}

// DataStream carries either a job fragment (commander to target) or a relayed
// row (target to commander). The tag is shared on the wire; use Job or Relay
// depending on which role is decoding.
type DataStream struct {
	Values []string
}

type DataStreamFinish struct{}

func (JoinRequest) Tag() Tag      { return TagJoinRequest }
func (StartLogging) Tag() Tag     { return TagStartLogging }
func (BecomeTarget) Tag() Tag     { return TagBecomeTarget }
func (GetID) Tag() Tag            { return TagGetID }
func (DataStream) Tag() Tag       { return TagDataStream }
func (DataStreamFinish) Tag() Tag { return TagDataStreamFinish }

func (JoinRequest) Fields() []string { return nil }

func (m StartLogging) Fields() []string {
	return []string{strconv.Itoa(m.Count), boolField(m.StreamBack)}
}

func (m BecomeTarget) Fields() []string { return []string{strconv.Itoa(m.ID)} }

func (m GetID) Fields() []string {
	if !m.HasID {
		return nil
	}
	return []string{strconv.Itoa(m.ID)}
}

func (m DataStream) Fields() []string { return m.Values }

func (DataStreamFinish) Fields() []string { return nil }

// Encode joins tag and fields into a datagram.
func Encode(tag Tag, fields ...string) (string, error) {
	var b strings.Builder
	b.WriteByte(byte(tag))
	for _, f := range fields {
		if strings.Contains(f, Delimiter) {
			return "", fmt.Errorf("%w: %q", ErrDelimiterInField, f)
		}
		b.WriteString(Delimiter)
		b.WriteString(f)
	}
	return b.String(), nil
}

// Marshal encodes a typed message.
func Marshal(m Message) (string, error) {
	return Encode(m.Tag(), m.Fields()...)
}

// Decode parses a datagram into one of the concrete Message types.
func Decode(datagram string) (Message, error) {
	if datagram == "" {
		return nil, ErrEmptyDatagram
	}
	parts := strings.Split(datagram, Delimiter)
	if len(parts[0]) != 1 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, parts[0])
	}
	tag, fields := Tag(parts[0][0]), parts[1:]

	switch tag {
	case TagJoinRequest:
		return JoinRequest{}, nil

	case TagStartLogging:
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: start logging needs count and stream flag", ErrMalformed)
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%w: bad sensor count %q", ErrMalformed, fields[0])
		}
		return StartLogging{Count: count, StreamBack: fields[1] == "1"}, nil

	case TagBecomeTarget:
		if len(fields) < 1 {
			return nil, fmt.Errorf("%w: become target needs an id", ErrMalformed)
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad id %q", ErrMalformed, fields[0])
		}
		return BecomeTarget{ID: id}, nil

	case TagGetID:
		if len(fields) == 0 || fields[0] == "" {
			return GetID{}, nil
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad id %q", ErrMalformed, fields[0])
		}
		return GetID{ID: id, HasID: true}, nil

	case TagDataStream:
		return DataStream{Values: fields}, nil

	case TagDataStreamFinish:
		return DataStreamFinish{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, parts[0])
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
