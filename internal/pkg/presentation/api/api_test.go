package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diwise/water-network/internal/pkg/application"
	"github.com/diwise/water-network/internal/pkg/infrastructure/router"
	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

func TestHealth(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/health", nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)
}

func TestCreateAndGetDevice(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))
	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(resp.Header.Get("Location"), "/api/v0/devices/ohsr-1")

	resp, body := testRequest(is, server, http.MethodGet, "/api/v0/devices/ohsr-1", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	d := struct {
		Data types.Device `json:"data"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &d))
	is.Equal(d.Data.Name, "OHSR Warangal")
	is.Equal(d.Data.Capacity, application.DefaultCapacity)
}

func TestCreateDuplicateDeviceReturnsConflict(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))
	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))
	is.Equal(resp.StatusCode, http.StatusConflict)
}

func TestCreateInvalidDeviceReturnsBadRequest(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(`{"id":"x"}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)
}

func TestGetUnknownDeviceReturnsNotFound(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodGet, "/api/v0/devices/nosuchdevice", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestDeleteDevice(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))

	resp, _ := testRequest(is, server, http.MethodDelete, "/api/v0/devices/ohsr-1", nil)
	is.Equal(resp.StatusCode, http.StatusNoContent)

	resp, _ = testRequest(is, server, http.MethodDelete, "/api/v0/devices/ohsr-1", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestUploadSeedFile(t *testing.T) {
	is, server, app := testSetup(t)
	defer server.Close()

	body := new(bytes.Buffer)
	part := multipart.NewWriter(body)
	w, err := part.CreateFormFile("fileupload", "network.csv")
	is.NoErr(err)
	_, err = io.Copy(w, strings.NewReader(csvMock))
	is.NoErr(err)
	part.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v0/devices", body)
	req.Header.Add("Content-Type", part.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	resp.Body.Close()

	is.Equal(resp.StatusCode, http.StatusCreated)
	is.Equal(len(app.Devices(context.Background())), 1)
	is.Equal(len(app.GateWalls(context.Background())), 1)
}

func TestDevicesAsCsv(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v0/devices", nil)
	req.Header.Add("Accept", "text/csv")
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	is.Equal(len(lines), 2)
	is.True(strings.HasPrefix(lines[1], "device;ohsr-1;OHSR Warangal;"))
}

func TestFlowDirection(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/gatewalls", strings.NewReader(gateWallJson))
	is.Equal(resp.StatusCode, http.StatusCreated)

	resp, body := testRequest(is, server, http.MethodPut, "/api/v0/gatewalls/gw-1/flow", strings.NewReader(`{"direction":"straight"}`))
	is.Equal(resp.StatusCode, http.StatusOK)

	g := struct {
		Data types.GateWall `json:"data"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &g))
	is.Equal(g.Data.FlowDirection, types.FlowStraight)
	is.True(g.Data.IsActive)

	resp, _ = testRequest(is, server, http.MethodPut, "/api/v0/gatewalls/gw-1/flow", strings.NewReader(`{"direction":"left"}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, _ = testRequest(is, server, http.MethodPut, "/api/v0/gatewalls/nope/flow", strings.NewReader(`{"direction":"straight"}`))
	is.Equal(resp.StatusCode, http.StatusNotFound)

	resp, body = testRequest(is, server, http.MethodGet, "/api/v0/gatewalls/gw-1/history?limit=1", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	h := struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
		Data []types.HistoryEntry `json:"data"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &h))
	is.Equal(h.Meta.Count, 1)
	is.Equal(h.Data[0].FlowDirection, types.FlowStraight)
}

func TestDrawingSession(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/drawing/points", strings.NewReader(`{"latitude":17.0,"longitude":78.0}`))
	is.Equal(resp.StatusCode, http.StatusNotFound)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing", nil)
	is.Equal(resp.StatusCode, http.StatusConflict)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing/points", strings.NewReader(`{"latitude":17.0,"longitude":78.0}`))
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing/finish", nil)
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing/points", strings.NewReader(`{"latitude":17.001}`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/drawing/points", strings.NewReader(`{"latitude":17.001,"longitude":78.001}`))
	is.Equal(resp.StatusCode, http.StatusOK)

	resp, body := testRequest(is, server, http.MethodPost, "/api/v0/drawing/finish", nil)
	is.Equal(resp.StatusCode, http.StatusOK)

	p := struct {
		Data types.Pipeline `json:"data"`
	}{}
	is.NoErr(json.Unmarshal([]byte(body), &p))
	is.Equal(p.Data.PointCount(), 2)
	is.Equal(p.Data.Color, types.ColorInactive)

	resp, _ = testRequest(is, server, http.MethodDelete, "/api/v0/drawing", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestPipelinesAsGeoJSON(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	resp, _ := testRequest(is, server, http.MethodPost, "/api/v0/pipelines", strings.NewReader(pipelineJson))
	is.Equal(resp.StatusCode, http.StatusCreated)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/v0/pipelines", nil)
	req.Header.Add("Accept", "application/geo+json")
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	defer resp.Body.Close()

	is.Equal(resp.Header.Get("Content-Type"), "application/geo+json")

	fc := struct {
		Type     string `json:"type"`
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}{}
	is.NoErr(json.NewDecoder(resp.Body).Decode(&fc))

	is.Equal(fc.Type, "FeatureCollection")
	is.Equal(fc.Features[0].Geometry.Type, "MultiLineString")
	is.Equal(fc.Features[0].Geometry.Coordinates[0][0], [2]float64{78.0, 17.0})
}

func TestHierarchyAndSearch(t *testing.T) {
	is, server, _ := testSetup(t)
	defer server.Close()

	testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))

	resp, body := testRequest(is, server, http.MethodGet, "/api/v0/hierarchy?path=India/Telangana", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, "Warangal"))

	resp, _ = testRequest(is, server, http.MethodGet, "/api/v0/hierarchy?path=India/Kerala", nil)
	is.Equal(resp.StatusCode, http.StatusNotFound)

	resp, body = testRequest(is, server, http.MethodGet, "/api/v0/hierarchy/leaf?path=India/Telangana/Warangal/Hanamkonda/Kazipet", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, "ohsr-1"))

	resp, body = testRequest(is, server, http.MethodGet, "/api/v0/search?q=o", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.Contains(body, `"count":0`))

	_, body = testRequest(is, server, http.MethodGet, "/api/v0/search?q=warangal", nil)
	is.True(strings.Contains(body, `"count":1`))
}

func TestExportAndImport(t *testing.T) {
	is, server, app := testSetup(t)
	defer server.Close()

	testRequest(is, server, http.MethodPost, "/api/v0/devices", strings.NewReader(deviceJson))

	resp, exported := testRequest(is, server, http.MethodGet, "/api/v0/export", nil)
	is.Equal(resp.StatusCode, http.StatusOK)
	is.True(strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment"))

	testRequest(is, server, http.MethodDelete, "/api/v0/devices/ohsr-1", nil)
	is.Equal(len(app.Devices(context.Background())), 0)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/import", strings.NewReader(exported))
	is.Equal(resp.StatusCode, http.StatusNoContent)
	is.Equal(len(app.Devices(context.Background())), 1)

	resp, _ = testRequest(is, server, http.MethodPost, "/api/v0/import", strings.NewReader(`{"devices":`))
	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.Equal(len(app.Devices(context.Background())), 1)
}

func testSetup(t *testing.T) (*is.I, *httptest.Server, application.App) {
	is := is.New(t)
	ctx := context.Background()

	app := application.New(nil, nil, nil)
	r := RegisterHandlers(ctx, router.New("test"), app, nil, nil)

	return is, httptest.NewServer(r), app
}

func testRequest(is *is.I, ts *httptest.Server, method, path string, body io.Reader) (*http.Response, string) {
	req, _ := http.NewRequest(method, ts.URL+path, body)
	resp, err := http.DefaultClient.Do(req)
	is.NoErr(err)
	respBody, _ := io.ReadAll(resp.Body)
	defer resp.Body.Close()

	return resp, string(respBody)
}

const deviceJson string = `{
	"id": "ohsr-1",
	"name": "OHSR Warangal",
	"latitude": 17.9689,
	"longitude": 79.5941,
	"state": "Telangana",
	"district": "Warangal",
	"mandal": "Hanamkonda",
	"habitation": "Kazipet",
	"device": "ohsr"
}`

const gateWallJson string = `{
	"id": "gw-1",
	"name": "Gate wall 1",
	"latitude": 17.0,
	"longitude": 78.0,
	"type": "straight"
}`

const pipelineJson string = `{
	"id": "p-1",
	"segments": [[[17.0, 78.0], [17.001, 78.001]]]
}`

const csvMock string = `entity;id;name;latitude;longitude;altitude;country;state;district;mandal;habitation;kind
device;ohsr-2;OHSR Kazipet;17.97;79.59;0;India;Telangana;Warangal;Hanamkonda;Kazipet;ohsr
gatewall;gw-2;Gate wall Kazipet;17.98;79.60;0;India;Telangana;Warangal;Hanamkonda;Kazipet;t-junction
`
