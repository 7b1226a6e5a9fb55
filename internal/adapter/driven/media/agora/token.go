// Package agora mints RTC access tokens for the hosted media transport.
// The server holds the app certificate; browsers get short-lived tokens via
// the HTTP token endpoint and never see the credential.
package agora

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math/big"
	"sort"
	"time"
)

const tokenVersion = "006"

// DefaultTTL matches the vendor's recommended one hour token lifetime.
const DefaultTTL = time.Hour

// Privilege keys of the RTC service.
const (
	privJoinChannel        uint16 = 1
	privPublishAudioStream uint16 = 2
	privPublishVideoStream uint16 = 3
	privPublishDataStream  uint16 = 4
)

var ErrNoCredentials = errors.New("app id and certificate are required")

// TokenService builds signed channel tokens from the app credential pair.
type TokenService struct {
	appID          string
	appCertificate string
	ttl            time.Duration

	// test seams
	now  func() time.Time
	salt func() uint32
}

func NewTokenService(appID, appCertificate string) *TokenService {
	return &TokenService{
		appID:          appID,
		appCertificate: appCertificate,
		ttl:            DefaultTTL,
		now:            time.Now,
		salt:           randomSalt,
	}
}

// Configured reports whether the server credentials are set.
func (s *TokenService) Configured() bool {
	return s.appID != "" && s.appCertificate != ""
}

func (s *TokenService) AppID() string { return s.appID }

// ChannelToken mints a publisher token for one uid in one channel.
func (s *TokenService) ChannelToken(channel, uid string) (string, error) {
	if !s.Configured() {
		return "", ErrNoCredentials
	}
	if channel == "" || uid == "" {
		return "", errors.New("channel and uid are required")
	}

	now := s.now()
	expire := uint32(now.Add(s.ttl).Unix())
	privileges := map[uint16]uint32{
		privJoinChannel:        expire,
		privPublishAudioStream: expire,
		privPublishVideoStream: expire,
		privPublishDataStream:  expire,
	}

	message := packMessage(s.salt(), uint32(now.Unix())+24*3600, privileges)

	toSign := new(bytes.Buffer)
	toSign.WriteString(s.appID)
	toSign.WriteString(channel)
	toSign.WriteString(uid)
	toSign.Write(message)

	mac := hmac.New(sha256.New, []byte(s.appCertificate))
	mac.Write(toSign.Bytes())
	signature := mac.Sum(nil)

	content := new(bytes.Buffer)
	packBytes(content, signature)
	packUint32(content, crc32.ChecksumIEEE([]byte(channel)))
	packUint32(content, crc32.ChecksumIEEE([]byte(uid)))
	packBytes(content, message)

	return tokenVersion + s.appID + base64.StdEncoding.EncodeToString(content.Bytes()), nil
}

func packMessage(salt, ts uint32, privileges map[uint16]uint32) []byte {
	buf := new(bytes.Buffer)
	packUint32(buf, salt)
	packUint32(buf, ts)

	keys := make([]uint16, 0, len(privileges))
	for k := range privileges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	packUint16(buf, uint16(len(keys)))
	for _, k := range keys {
		packUint16(buf, k)
		packUint32(buf, privileges[k])
	}
	return buf.Bytes()
}

func packUint16(buf *bytes.Buffer, v uint16) {
	binary.Write(buf, binary.LittleEndian, v)
}

func packUint32(buf *bytes.Buffer, v uint32) {
	binary.Write(buf, binary.LittleEndian, v)
}

// packBytes writes a little-endian uint16 length prefix then the bytes.
func packBytes(buf *bytes.Buffer, b []byte) {
	packUint16(buf, uint16(len(b)))
	buf.Write(b)
}

func randomSalt() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<31))
	if err != nil {
		return uint32(time.Now().UnixNano())
	}
	return uint32(n.Int64())
}
