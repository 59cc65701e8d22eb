// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storypoints/roundsync/middleware"
	"github.com/storypoints/roundsync/models"
	"github.com/storypoints/roundsync/testutil"
	"github.com/storypoints/roundsync/tracker"
)

func TestSubmitEstimate(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()

	roundID, driverKey, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)

	tests := []struct {
		name           string
		driverKey      string
		body           models.SubmitEstimateRequest
		expectedStatus int
		wantEstimate   float64
	}{
		{
			name:           "missing driver key",
			body:           models.SubmitEstimateRequest{Estimate: 5, RoundID: roundID},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid driver key",
			driverKey:      "bogus",
			body:           models.SubmitEstimateRequest{Estimate: 5, RoundID: roundID},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "missing round id",
			driverKey:      driverKey,
			body:           models.SubmitEstimateRequest{Estimate: 5},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "on-scale value passes through",
			driverKey:      driverKey,
			body:           models.SubmitEstimateRequest{Estimate: 5, RoundID: roundID},
			expectedStatus: http.StatusOK,
			wantEstimate:   5,
		},
		{
			name:           "off-scale value snaps to the scale",
			driverKey:      driverKey,
			body:           models.SubmitEstimateRequest{Estimate: 4.2, RoundID: roundID},
			expectedStatus: http.StatusOK,
			wantEstimate:   5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := &fakeTracker{}
			handler := NewEstimateHandler(conn, cfg, tc)

			headers := map[string]string{}
			if tt.driverKey != "" {
				headers[middleware.HeaderDriverKey] = tt.driverKey
			}
			req := testutil.MakeRequest(http.MethodPost, "/issues/iss-1/estimate", tt.body, headers)
			req.SetPathValue("id", "iss-1")
			w := httptest.NewRecorder()
			handler.SubmitEstimate(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus == http.StatusOK {
				var resp models.SubmitEstimateResponse
				testutil.AssertJSON(t, w, &resp)
				if resp.Estimate != tt.wantEstimate {
					t.Errorf("Estimate = %v, want %v", resp.Estimate, tt.wantEstimate)
				}
				if got := tc.estimates["iss-1"]; got != tt.wantEstimate {
					t.Errorf("tracker received %v, want %v", got, tt.wantEstimate)
				}
			}
		})
	}
}

func TestSubmitEstimateTrackerNotConfigured(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewEstimateHandler(conn, cfg, tracker.NewHTTPClient("", ""))

	roundID, driverKey, _, _ := testutil.CreateTestRound(t, conn, cfg, models.StatusOpen)

	headers := map[string]string{middleware.HeaderDriverKey: driverKey}
	req := testutil.MakeRequest(http.MethodPost, "/issues/iss-1/estimate",
		models.SubmitEstimateRequest{Estimate: 5, RoundID: roundID}, headers)
	req.SetPathValue("id", "iss-1")
	w := httptest.NewRecorder()
	handler.SubmitEstimate(w, req)

	testutil.AssertStatus(t, w, http.StatusServiceUnavailable)
}
