package iso7816

import (
	"fmt"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: Type of Interindustry (0=First, 1=Further).
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// 1. First Interindustry Class (00xx xxxx):
//    - Bits 4-3: Secure Messaging.
//    - Bits 2-1: Logical Channel number (0-3).
//
// 2. Further Interindustry Class (01xx xxxx):
//    - Bit 6: Secure Messaging (No SM or SM active).
//    - Bits 4-1: Logical Channel number minus 4 (channels 4-19).
//
// EMV payment applets (and so most emulated tables) use CLA 0x00 for ISO
// commands and the proprietary 0x80 for GET PROCESSING OPTIONS and GENERATE AC.

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

// Class represents the parsed ISO 7816-4 Class byte (CLA).
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // Logical channel number (0-19)
}

// NewClass creates a Class object by decoding a raw CLA byte, rejecting the reserved 0xFF.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}
	return DecodeClass(cla), nil
}

// DecodeClass decodes a CLA byte without validation.
// Inbound commands are decoded this way so that a reserved CLA still reaches the resolver.
func DecodeClass(cla byte) Class {
	c := Class{Raw: cla}

	if cla&0x80 != 0 || cla == 0xFF {
		c.IsProprietary = true
		return c
	}

	c.IsChained = cla&0x10 != 0

	if cla&0x40 == 0 {
		c.SecureMessaging = SecureMessaging((cla >> 2) & 0x03)
		c.Channel = cla & 0x03
	} else {
		if cla&0x20 != 0 {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = (cla & 0x0F) + 4
	}

	return c
}

// Encode converts the Class object back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, fmt.Errorf("channel %d out of range (max 19)", c.Channel)
	}

	var res byte
	if c.IsChained {
		res |= 0x10
	}

	if c.Channel <= 3 {
		res |= byte(c.SecureMessaging) << 2
		res |= c.Channel
		return res, nil
	}

	res |= 0x40
	if c.SecureMessaging != SMNone {
		res |= 0x20
	}
	res |= c.Channel - 4
	return res, nil
}
