package hub

import (
	"context"

	"github.com/pztrick/television/internal/domain"
)

// StaffLogStream carries operator log lines to the staff group.
const StaffLogStream domain.Channel = "staff.log"

// SendToGroup broadcasts payload on stream to every member of group.
func SendToGroup(ctx context.Context, b domain.GroupBroadcaster, group domain.Group, stream domain.Channel, payload any) error {
	return b.Broadcast(ctx, group, domain.Broadcast{Stream: stream, Payload: payload})
}

// StaffLog pushes a log line to every connected staff member.
func StaffLog(ctx context.Context, b domain.GroupBroadcaster, message string) error {
	return SendToGroup(ctx, b, domain.GroupStaff, StaffLogStream, map[string]string{"message": message})
}
