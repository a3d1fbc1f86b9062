package printer

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func propertiesSignal(iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: "/org/bluez/hci0/dev_AC_3F_A4_00_00_01",
		Name: propertiesChanged,
		Body: []interface{}{iface, changed, []string{}},
	}
}

func TestConnectedChange(t *testing.T) {
	testCases := []struct {
		name      string
		sig       *dbus.Signal
		connected bool
		ok        bool
	}{
		{"Nil", nil, false, false},
		{"Connected", propertiesSignal(bluezDeviceInterface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}), true, true},
		{"Disconnected", propertiesSignal(bluezDeviceInterface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}), false, true},
		{"OtherProperty", propertiesSignal(bluezDeviceInterface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-60))}), false, false},
		{"OtherInterface", propertiesSignal("org.bluez.Adapter1", map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}), false, false},
		{"WrongType", propertiesSignal(bluezDeviceInterface, map[string]dbus.Variant{"Connected": dbus.MakeVariant("yes")}), false, false},
		{"ShortBody", &dbus.Signal{Name: propertiesChanged, Body: []interface{}{bluezDeviceInterface}}, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			connected, ok := connectedChange(tc.sig)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.connected, connected)
		})
	}
}

func TestAccessoryFromProperties(t *testing.T) {
	protocols := ProtocolMap{SerialPortProfile: ZebraRawPort}

	t.Run("Printer", func(t *testing.T) {
		acc := accessoryFromProperties(map[string]dbus.Variant{
			"Address": dbus.MakeVariant("AC:3F:A4:00:00:01"),
			"Alias":   dbus.MakeVariant("XXZEJ"),
			"Name":    dbus.MakeVariant("ZQ320"),
			"UUIDs":   dbus.MakeVariant([]string{SerialPortProfile}),
		}, protocols)

		assert.Equal(t, "AC:3F:A4:00:00:01", acc.SerialNumber)
		assert.Equal(t, "XXZEJ", acc.Name)
		assert.True(t, acc.Supports(ZebraRawPort))
	})

	t.Run("NameFallback", func(t *testing.T) {
		acc := accessoryFromProperties(map[string]dbus.Variant{
			"Address": dbus.MakeVariant("00:1B:66:00:00:02"),
			"Name":    dbus.MakeVariant("Headset"),
		}, protocols)

		assert.Equal(t, "Headset", acc.Name)
		assert.Empty(t, acc.Protocols)
	})
}

func TestAddressFromPath(t *testing.T) {
	assert.Equal(t, "AC:3F:A4:00:00:01", addressFromPath("/org/bluez/hci0/dev_AC_3F_A4_00_00_01"))
	assert.Empty(t, addressFromPath("/org/bluez/hci0"))
}

func TestBoolProperty(t *testing.T) {
	props := map[string]dbus.Variant{
		"Paired":    dbus.MakeVariant(true),
		"Connected": dbus.MakeVariant("true"),
	}
	assert.True(t, boolProperty(props, "Paired"))
	assert.False(t, boolProperty(props, "Connected"))
	assert.False(t, boolProperty(props, "Trusted"))
}

func TestPairedAccessories(t *testing.T) {
	protocols := ProtocolMap{SerialPortProfile: ZebraRawPort}
	device := func(address string, paired, connected bool) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			bluezDeviceInterface: {
				"Address":   dbus.MakeVariant(address),
				"Paired":    dbus.MakeVariant(paired),
				"Connected": dbus.MakeVariant(connected),
				"UUIDs":     dbus.MakeVariant([]string{SerialPortProfile}),
			},
		}
	}

	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez/hci0": {"org.bluez.Adapter1": {"Powered": dbus.MakeVariant(true)}},
		"/org/bluez/hci0/dev_AC_3F_A4_00_00_02": device("AC:3F:A4:00:00:02", true, true),
		"/org/bluez/hci0/dev_AC_3F_A4_00_00_01": device("AC:3F:A4:00:00:01", true, false),
		"/org/bluez/hci0/dev_AC_3F_A4_00_00_03": device("AC:3F:A4:00:00:03", false, false),
	}

	list := pairedAccessories(objects, protocols)

	// Idle paired printers are listed; unpaired ones are not
	if assert.Len(t, list, 2) {
		assert.Equal(t, "AC:3F:A4:00:00:01", list[0].SerialNumber)
		assert.Equal(t, "AC:3F:A4:00:00:02", list[1].SerialNumber)
		assert.True(t, list[0].Supports(ZebraRawPort))
	}
}
