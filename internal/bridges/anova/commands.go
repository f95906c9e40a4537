package anova

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ovenlink/ovenlink/internal/anova"
)

// commandNames maps the friendly names accepted on the MQTT command
// topic to their wire commands.
var commandNames = map[string]string{
	"start_cook": anova.CommandStartCook,
	"stop_cook":  anova.CommandStopCook,
	"set_probe":  anova.CommandSetProbe,
	"set_lamp":   anova.CommandSetLamp,
}

// commandRequest is the payload accepted on a device command topic.
type commandRequest struct {
	Command string                 `json:"command"`
	Body    map[string]interface{} `json:"body,omitempty"`
}

// handleCommandMessage processes one inbound MQTT command request.
//
// The target device is the last topic segment; the payload names the
// command and carries its body. Rejections (unknown device, channel
// not steady, cloud refusal) are returned so the MQTT layer logs them;
// they never affect state sync.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	deviceID := topic[strings.LastIndexByte(topic, '/')+1:]
	if deviceID == "" {
		return fmt.Errorf("command topic %q names no device", topic)
	}

	var req commandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding command payload: %w", err)
	}
	wire, ok := commandNames[req.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", req.Command)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandDispatchTimeout)
	defer cancel()

	if err := b.SendCommand(ctx, deviceID, wire, req.Body); err != nil {
		return fmt.Errorf("dispatching %s to %s: %w", req.Command, deviceID, err)
	}
	b.logger.Info("command dispatched", "device_id", deviceID, "command", req.Command)
	return nil
}
