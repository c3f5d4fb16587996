package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the encoding version written by Encode.
const CurrentSchemaVersion uint8 = 1

const maxPermissions = 1024

// ErrCorrupt is returned for blobs that do not decode.
var ErrCorrupt = errors.New("corrupt chain state")

// Encode serializes s in the current schema version.
func Encode(s *State) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(CurrentSchemaVersion)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"chainID", s.ChainID},
		{"subjectID", s.SubjectID},
		{"organizationID", s.OrganizationID},
		{"role", s.Role},
		{"lastTokenID", s.LastTokenID},
	} {
		if err := writeString(&buf, field.value); err != nil {
			return nil, fmt.Errorf("%s: %w", field.name, err)
		}
	}

	buf.Write(s.DeviceHash[:])
	buf.Write(s.NonceHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.Generation); err != nil {
		return nil, err
	}

	if len(s.Permissions) > maxPermissions {
		return nil, errors.New("too many permissions")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Permissions))); err != nil {
		return nil, err
	}
	for _, p := range s.Permissions {
		if err := writeString(&buf, p); err != nil {
			return nil, fmt.Errorf("permission: %w", err)
		}
	}

	for _, v := range []int64{s.LastTokenExpiresAt, s.CreatedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*State, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported chain schema version %d", ErrCorrupt, version)
	}

	s := &State{SchemaVersion: version}

	for _, dst := range []*string{&s.ChainID, &s.SubjectID, &s.OrganizationID, &s.Role, &s.LastTokenID} {
		if *dst, err = readString(reader); err != nil {
			return nil, ErrCorrupt
		}
	}

	if _, err := io.ReadFull(reader, s.DeviceHash[:]); err != nil {
		return nil, ErrCorrupt
	}
	if _, err := io.ReadFull(reader, s.NonceHash[:]); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.Generation); err != nil {
		return nil, ErrCorrupt
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, ErrCorrupt
	}
	if count > maxPermissions {
		return nil, ErrCorrupt
	}
	if count > 0 {
		s.Permissions = make([]string, 0, count)
	}
	for i := 0; i < int(count); i++ {
		p, err := readString(reader)
		if err != nil {
			return nil, ErrCorrupt
		}
		s.Permissions = append(s.Permissions, p)
	}

	for _, dst := range []*int64{&s.LastTokenExpiresAt, &s.CreatedAt, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, ErrCorrupt
		}
	}

	if reader.Len() != 0 {
		return nil, ErrCorrupt
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("value too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
