package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/ognbridge/ogn2fanet/internal/types"
)

// MockPositionLine builds a raw APRS position line for the given device id
// and id byte (hex, e.g. "1C" for a paraglider with address type 0)
func MockPositionLine(idByte, deviceID string) string {
	return fmt.Sprintf(
		"FLR%s>APRS,qAS,Slovenia:/094530h4615.123N/01445.678E'180/025/A=002500 !W77! id%s%s +150fpm +2.5rot FL008.50 45.2dB 0e +1.2kHz gps2x3",
		deviceID, idByte, deviceID,
	)
}

// MockPositionFix builds a parsed paraglider fix for filter and encoder tests
func MockPositionFix(deviceID string, received time.Time) *types.Message {
	return &types.Message{
		Type:           types.MessagePosition,
		SourceCall:     "FLR" + deviceID,
		Latitude:       46.25205,
		Longitude:      14.7613,
		Altitude:       762,
		Course:         180,
		Speed:          46.3,
		DeviceID:       deviceID,
		AddressType:    0,
		Category:       types.CategoryParaglider,
		CategoryName:   "paraglider",
		ClimbRate:      0.762,
		SignalStrength: 45.2,
		Received:       received,
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
