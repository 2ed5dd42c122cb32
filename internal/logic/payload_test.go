package logic

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int       { return &v }
func u16Ptr(v uint16) *uint16 { return &v }

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		name string
		adv  Advertisement
		want PayloadInfo
	}{
		{
			name: "apple watch",
			adv:  Advertisement{ManufacturerData: []byte{0x4C, 0x00, 0x09, 0x06}},
			want: PayloadInfo{Manufacturer: "Apple", DeviceType: "Apple Watch", ManufacturerID: 0x004C, PayloadHex: "4C 00 09 06"},
		},
		{
			name: "apple unknown type",
			adv:  Advertisement{ManufacturerData: []byte{0x4C, 0x00, 0x42}},
			want: PayloadInfo{Manufacturer: "Apple", DeviceType: "Apple Device (Type: 0x42)", ManufacturerID: 0x004C, PayloadHex: "4C 00 42"},
		},
		{
			name: "apple too short",
			adv:  Advertisement{ManufacturerData: []byte{0x4C, 0x00}},
			want: PayloadInfo{Manufacturer: "Apple", DeviceType: "Apple (insufficient data)", ManufacturerID: 0x004C, PayloadHex: "4C 00"},
		},
		{
			name: "samsung",
			adv:  Advertisement{ManufacturerData: []byte{0x75, 0x00, 0x01}},
			want: PayloadInfo{Manufacturer: "Samsung", DeviceType: "Samsung Device", ManufacturerID: 0x0075, PayloadHex: "75 00 01"},
		},
		{
			name: "unknown company keeps name heuristic",
			adv:  Advertisement{Name: "Pixel 8", ManufacturerData: []byte{0x34, 0x12, 0xFF}},
			want: PayloadInfo{Manufacturer: "Unknown (0x1234)", DeviceType: "Google Device", ManufacturerID: 0x1234, PayloadHex: "34 12 FF"},
		},
		{
			name: "service data only",
			adv:  Advertisement{HasServiceData: true},
			want: PayloadInfo{DeviceType: PlaceholderDeviceType, PayloadHex: PayloadServiceData},
		},
		{
			name: "composed summary",
			adv:  Advertisement{Name: "Tag", TxPower: intPtr(-4), Appearance: u16Ptr(0x0200), HasServiceUUID: true},
			want: PayloadInfo{DeviceType: "BLE Service Device", PayloadHex: "N:Tag TX:-4dBm App:0x200 SVC:YES"},
		},
		{
			name: "nothing at all",
			adv:  Advertisement{},
			want: PayloadInfo{DeviceType: PlaceholderDeviceType, PayloadHex: PayloadNone},
		},
		{
			name: "one byte of manufacturer data is ignored",
			adv:  Advertisement{Name: "iPhone", ManufacturerData: []byte{0x4C}},
			want: PayloadInfo{DeviceType: "Apple Device", PayloadHex: "N:iPhone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ClassifyPayload(tt.adv)); diff != "" {
				t.Errorf("ClassifyPayload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHexPayloadCapsAt32Bytes(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = 0xAB
	}
	got := HexPayload(data)
	assert.Len(t, strings.Fields(got), 32)
	assert.Equal(t, "0A FF", HexPayload([]byte{0x0a, 0xff}))
	assert.Empty(t, HexPayload(nil))
}

func TestManufacturerName(t *testing.T) {
	assert.Equal(t, "Cypress Semiconductor", ManufacturerName(0x0131))
	assert.Equal(t, "Garmin", ManufacturerName(0x0087))
	assert.Equal(t, "Unknown (0xBEEF)", ManufacturerName(0xBEEF))
}
