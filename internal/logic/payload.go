package logic

import (
	"fmt"
	"strings"
)

const (
	// PlaceholderDeviceType is the device type used when nothing better is known.
	PlaceholderDeviceType = "Unknown"

	// PayloadNone marks an advertisement that carried nothing decodable.
	PayloadNone = "AdvData:NONE"

	// PayloadServiceData marks an advertisement with service data but no
	// manufacturer data.
	PayloadServiceData = "ServiceData:YES"

	maxPayloadBytes = 32
)

const (
	companyApple     uint16 = 0x004C
	companySamsung   uint16 = 0x0075
	companyGoogle    uint16 = 0x00E0
	companyMicrosoft uint16 = 0x0006
	companyBroadcom  uint16 = 0x000F
	companyGarmin    uint16 = 0x0087
	companyCypress   uint16 = 0x0131
)

var companyNames = map[uint16]string{
	companyApple:     "Apple",
	companySamsung:   "Samsung",
	companyGoogle:    "Google",
	companyMicrosoft: "Microsoft",
	companyBroadcom:  "Broadcom",
	companyGarmin:    "Garmin",
	companyCypress:   "Cypress Semiconductor",
}

var appleTypes = map[byte]string{
	0x02: "Apple iBeacon",
	0x05: "Apple AirDrop",
	0x07: "Apple AirPods",
	0x09: "Apple Watch",
	0x0A: "Apple Handoff",
	0x0C: "Apple Action Tag",
	0x10: "Apple Nearby",
}

// ClassifyPayload derives manufacturer, device type and a printable payload
// summary from an advertisement. Unknown company ids are not an error, they
// just yield less information.
func ClassifyPayload(adv Advertisement) PayloadInfo {
	info := PayloadInfo{DeviceType: deviceTypeFromName(adv)}

	if data := adv.ManufacturerData; len(data) >= 2 {
		id := uint16(data[1])<<8 | uint16(data[0])
		info.ManufacturerID = id
		info.Manufacturer = ManufacturerName(id)
		info.PayloadHex = HexPayload(data)
		switch id {
		case companyApple:
			info.DeviceType = appleDeviceType(data)
		case companySamsung:
			info.DeviceType = "Samsung Device"
		}
		return info
	}

	if adv.HasServiceData {
		info.PayloadHex = PayloadServiceData
		return info
	}

	info.PayloadHex = advSummary(adv)
	return info
}

// ManufacturerName maps a Bluetooth SIG company id to a name.
func ManufacturerName(id uint16) string {
	if name, ok := companyNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04X)", id)
}

// appleDeviceType decodes the Apple continuity type byte that follows the
// company id.
func appleDeviceType(data []byte) string {
	if len(data) < 3 {
		return "Apple (insufficient data)"
	}
	if label, ok := appleTypes[data[2]]; ok {
		return label
	}
	return fmt.Sprintf("Apple Device (Type: 0x%02X)", data[2])
}

func deviceTypeFromName(adv Advertisement) string {
	name := adv.Name
	switch {
	case strings.Contains(name, "iPhone"), strings.Contains(name, "iPad"):
		return "Apple Device"
	case strings.Contains(name, "Galaxy"), strings.Contains(name, "Samsung"):
		return "Samsung Device"
	case strings.Contains(name, "Pixel"):
		return "Google Device"
	case adv.HasServiceUUID:
		return "BLE Service Device"
	default:
		return PlaceholderDeviceType
	}
}

func advSummary(adv Advertisement) string {
	var parts []string
	if adv.Name != "" {
		parts = append(parts, "N:"+adv.Name)
	}
	if adv.TxPower != nil {
		parts = append(parts, fmt.Sprintf("TX:%ddBm", *adv.TxPower))
	}
	if adv.Appearance != nil {
		parts = append(parts, fmt.Sprintf("App:0x%X", *adv.Appearance))
	}
	if adv.HasServiceUUID {
		parts = append(parts, "SVC:YES")
	}
	if len(parts) == 0 {
		return PayloadNone
	}
	return strings.Join(parts, " ")
}

// HexPayload renders up to 32 bytes of data as upper-case, space separated
// hex. Longer payloads are truncated silently.
func HexPayload(data []byte) string {
	if len(data) > maxPayloadBytes {
		data = data[:maxPayloadBytes]
	}
	var b strings.Builder
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
