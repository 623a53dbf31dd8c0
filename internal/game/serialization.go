package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Checksum is a deterministic digest of a session's state. Clients compare
// it against their locally applied state to detect divergence.
type Checksum struct {
	Hash    string `json:"hash"`
	Version int    `json:"version"` // serialization version
}

// ComputeChecksum hashes a canonical rendering of s. Timestamps are left out so
// two replicas holding the same board agree regardless of when they stored it.
func (s Session) ComputeChecksum() (Checksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return Checksum{}, fmt.Errorf("failed to compute hash: %w", err)
	}
	return Checksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: 1,
	}, nil
}

// VerifyChecksum reports whether s still hashes to expected.
func (s Session) VerifyChecksum(expected Checksum) (bool, error) {
	computed, err := s.ComputeChecksum()
	if err != nil {
		return false, err
	}
	return computed.Hash == expected.Hash, nil
}

func (s Session) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "SESSION:%s|%s|%s|%s|%s|%d\n",
		s.ID, s.Name, s.Host, s.Phase, s.EncounterDeckID, s.Version)

	// Roster order matters.
	for _, p := range s.Players {
		fmt.Fprintf(&buf, "PLAYER:%s|%t|%t|%s\n", p.Name, p.IsHost, p.IsReady, p.DeckID)
	}

	if s.PlayZone == nil {
		return buf.String()
	}
	z := s.PlayZone

	writeDeck(&buf, z.Encounter)
	owners := make([]string, 0, len(z.PlayerDecks))
	for owner := range z.PlayerDecks {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		writeDeck(&buf, z.PlayerDecks[owner])
	}

	// Board order is draw order and matters.
	for _, c := range z.Cards {
		fmt.Fprintf(&buf, "CARD:%s|%s|%s|%s|%t\n",
			c.InstanceID, c.Code(), c.Owner, positionKey(c.Position), c.Exhausted)
		for _, counter := range c.Counters.Sorted() {
			fmt.Fprintf(&buf, "  COUNTER:%s=%d\n", counter.Name, counter.Count)
		}
	}

	return buf.String()
}

func writeDeck(buf *bytes.Buffer, d DeckInPlay) {
	fmt.Fprintf(buf, "DECK:%s|%s|%s|%s\n", d.Owner, d.DeckID, positionKey(d.DrawPosition), positionKey(d.DiscardPosition))
	fmt.Fprintf(buf, "  DRAW:%s\n", strings.Join(d.DrawPile, ","))
	fmt.Fprintf(buf, "  DISCARD:%s\n", strings.Join(d.DiscardPile, ","))
	fmt.Fprintf(buf, "  HAND:%s\n", strings.Join(d.Hand, ","))
}

func positionKey(p Position) string {
	return fmt.Sprintf("%d,%d,%d,%s", p.X, p.Y, p.Rotation, p.normalized().Face)
}

// SerializeToBytes gob-encodes the session. This is the encoding used for
// replay files.
func (s Session) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a session produced by SerializeToBytes.
func DeserializeFromBytes(data []byte) (Session, error) {
	var s Session
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}
