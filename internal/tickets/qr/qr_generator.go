package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// Claims is what a ticket's QR code carries.
type Claims struct {
	TicketID string `json:"tid"`
	EventID  string `json:"eid"`
	ZoneID   string `json:"zid"`
	UserID   string `json:"uid"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// Token returns the encrypted, URL-safe token printed into the QR code.
func (q *QRGenerator) Token(ticket models.Ticket) (string, error) {
	data, err := json.Marshal(Claims{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		ZoneID:   ticket.ZoneID,
		UserID:   ticket.UserID,
	})
	if err != nil {
		return "", err
	}
	return q.encrypt(data)
}

// GenerateEncryptedQR renders the ticket's token as a PNG QR code.
func (q *QRGenerator) GenerateEncryptedQR(ticket models.Ticket) ([]byte, error) {
	token, err := q.Token(ticket)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}

// DecryptQRData reverses Token. Tampered or foreign tokens fail
// authentication.
func (q *QRGenerator) DecryptQRData(token string) (*Claims, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidQRToken, err)
	}
	gcm, err := q.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: token too short", domain.ErrInvalidQRToken)
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidQRToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(plain, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidQRToken, err)
	}
	return &claims, nil
}

func (q *QRGenerator) encrypt(data []byte) (string, error) {
	gcm, err := q.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
