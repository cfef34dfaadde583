package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortSpecUnmarshalSimple(t *testing.T) {
	var p PortSpec
	require.NoError(t, json.Unmarshal([]byte("8080"), &p))
	assert.Equal(t, PortSimple, p.Kind)
	assert.EqualValues(t, 8080, p.ContainerPort)
}

func TestPortSpecUnmarshalMapped(t *testing.T) {
	var p PortSpec
	require.NoError(t, json.Unmarshal([]byte(`{"9000": 8080}`), &p))
	assert.Equal(t, PortMapped, p.Kind)
	assert.EqualValues(t, 9000, p.HostPort)
	assert.EqualValues(t, 8080, p.ContainerPort)
}

func TestPortSpecUnmarshalInvalid(t *testing.T) {
	var p PortSpec
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1, "b": 2}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`"not a port"`), &p))
}

func TestPortSpecRoundTrip(t *testing.T) {
	for _, data := range []string{`8080`, `{"9000":8080}`} {
		var p PortSpec
		require.NoError(t, json.Unmarshal([]byte(data), &p))
		out, err := json.Marshal(p)
		require.NoError(t, err)
		var reparsed PortSpec
		require.NoError(t, json.Unmarshal(out, &reparsed))
		assert.Equal(t, p, reparsed)
	}
}

func TestScalePolicyUnmarshal(t *testing.T) {
	cases := map[string]struct {
		kind  ScaleKind
		value float64
	}{
		`{"cpu": 2}`:      {ScalePerCPU, 2},
		`{"memory": 256}`: {ScalePerMemoryMiB, 256},
		`{"mem": 256}`:    {ScalePerMemoryMiB, 256},
		`{"server": 3}`:   {ScalePerInstance, 3},
		`{"instance": 3}`: {ScalePerInstance, 3},
	}
	for data, want := range cases {
		var s ScalePolicy
		require.NoError(t, json.Unmarshal([]byte(data), &s), data)
		assert.Equal(t, want.kind, s.Kind, data)
		assert.Equal(t, want.value, s.Value, data)
	}
}

func TestScalePolicyUnmarshalRejectsUnknownKey(t *testing.T) {
	var s ScalePolicy
	assert.Error(t, json.Unmarshal([]byte(`{"bogus": 1}`), &s))
}

func TestScalePolicyUnmarshalRejectsMultipleKeys(t *testing.T) {
	var s ScalePolicy
	assert.Error(t, json.Unmarshal([]byte(`{"cpu": 1, "mem": 2}`), &s))
}

func TestDeviceGroupSnapshotValidate(t *testing.T) {
	good := DeviceGroupSnapshot{
		AppsList: []string{"a", "b"},
		Apps: []AppSpec{
			{AppName: "a"},
			{AppName: "b"},
		},
	}
	assert.NoError(t, good.Validate())

	missing := DeviceGroupSnapshot{
		AppsList: []string{"a", "b"},
		Apps:     []AppSpec{{AppName: "a"}},
	}
	assert.Error(t, missing.Validate())

	dup := DeviceGroupSnapshot{
		AppsList: []string{"a", "a"},
		Apps:     []AppSpec{{AppName: "a"}},
	}
	assert.Error(t, dup.Validate())
}

func TestDeviceGroupSnapshotValidateRejectsDuplicateAppName(t *testing.T) {
	dup := DeviceGroupSnapshot{
		AppsList: []string{"a"},
		Apps:     []AppSpec{{AppName: "a"}, {AppName: "a"}},
	}
	assert.Error(t, dup.Validate())
}

func TestDecodeSnapshot(t *testing.T) {
	raw := []byte(`{
		"device_group_id": 5,
		"prune_id": 1,
		"apps_list": ["web"],
		"apps": [
			{
				"app_name": "web",
				"app_id": 3,
				"docker_image": "myorg/web:v1",
				"running": true,
				"rolling_restart": false,
				"containers_per": {"cpu": 1},
				"starting_ports": [8080, {"9000": 9000}]
			}
		]
	}`)
	snap, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 5, snap.DeviceGroupID)
	assert.Equal(t, []string{"web"}, snap.AppsList)
	require.Len(t, snap.Apps, 1)
	app := snap.Apps[0]
	assert.Equal(t, "myorg/web:v1", app.DockerImage)
	assert.Len(t, app.StartingPorts, 2)
}

func TestDecodeSnapshotRejectsMismatchedAppsList(t *testing.T) {
	raw := []byte(`{"device_group_id":1,"prune_id":0,"apps_list":["missing"],"apps":[]}`)
	_, err := DecodeSnapshot(raw)
	assert.Error(t, err)
}

func TestDecodeSnapshotRejectsDuplicateAppNameInApps(t *testing.T) {
	raw := []byte(`{"device_group_id":1,"prune_id":0,"apps_list":["web"],"apps":[
		{"app_name":"web","app_id":1,"containers_per":{"instance":1}},
		{"app_name":"web","app_id":1,"containers_per":{"instance":1}}
	]}`)
	_, err := DecodeSnapshot(raw)
	assert.Error(t, err)
}
