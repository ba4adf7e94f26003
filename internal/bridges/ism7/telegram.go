package ism7

import (
	"fmt"
	"time"
)

// byteShift is the bit shift for the high byte of a telegram word.
const byteShift = 8

// Telegram is one data unit received from the controller bus.
//
// Every ISM7 telegram addresses a telegram number (the info number on the
// bus) and carries exactly two data bytes.
type Telegram struct {
	// Number is the telegram number the bytes belong to.
	Number uint16 `json:"nr"`

	// Low is the low data byte.
	Low byte `json:"low"`

	// High is the high data byte.
	High byte `json:"high"`
}

// Word returns the two data bytes as an unsigned 16-bit value.
func (t Telegram) Word() uint16 {
	return uint16(t.High)<<byteShift | uint16(t.Low)
}

// String returns a compact representation for logging.
func (t Telegram) String() string {
	return fmt.Sprintf("#%d[%02X %02X]", t.Number, t.Low, t.High)
}

// WriteCommand describes one telegram to send to the controller.
// A single logical write may need several commands when the value spans
// more than one telegram.
type WriteCommand struct {
	// Telegram is the telegram number to write.
	Telegram uint16 `json:"telegram"`

	// Low is the low data byte.
	Low byte `json:"low"`

	// High is the high data byte.
	High byte `json:"high"`
}

// TelegramBatch is a set of telegrams delivered by the gateway in one
// message. All telegrams in a batch belong to the same device.
type TelegramBatch struct {
	// Timestamp is when the gateway read the telegrams (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Telegrams are the received telegrams in bus order.
	Telegrams []Telegram `json:"telegrams"`
}

// wordCommand builds a write command from a 16-bit word.
func wordCommand(telegram uint16, word uint16) WriteCommand {
	return WriteCommand{
		Telegram: telegram,
		Low:      byte(word),
		High:     byte(word >> byteShift),
	}
}
