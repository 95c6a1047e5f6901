package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
)

const (
	commandTimeout     = 5 * time.Second
	stopTimeout        = 10 * time.Second
	commandChannelSize = 256
)

// ErrDirectoryStopped is returned by commands issued after Stop.
var ErrDirectoryStopped = errors.New("group directory stopped")

// Member is anything the directory can deliver frames to.
type Member interface {
	ID() string
	Send(frame []byte) bool
	CloseAfterFlush()
}

// directoryCmd is the command interface for the Directory actor.
type directoryCmd interface{ isDirectoryCmd() }

type baseDirectoryCmd struct{}

func (baseDirectoryCmd) isDirectoryCmd() {}

type joinCmd struct {
	baseDirectoryCmd
	group  domain.Group
	member Member
	reply  chan struct{}
}

type leaveCmd struct {
	baseDirectoryCmd
	group  domain.Group
	member Member
	reply  chan struct{}
}

type leaveAllCmd struct {
	baseDirectoryCmd
	member Member
	reply  chan int
}

type deliverCmd struct {
	baseDirectoryCmd
	group domain.Group
	frame []byte
	close bool
	reply chan int
}

type membersCmd struct {
	baseDirectoryCmd
	group domain.Group
	reply chan []string
}

type groupsOfCmd struct {
	baseDirectoryCmd
	member Member
	reply  chan []domain.Group
}

type stopCmd struct {
	baseDirectoryCmd
}

// Directory maps group names to member sets.
type Directory struct {
	cmdCh       chan directoryCmd
	clock       clockwork.Clock
	groups      map[domain.Group]map[Member]struct{}
	memberships map[Member]map[domain.Group]struct{}
	layer       Layer
	metrics     *metrics.GroupMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

var _ domain.GroupBroadcaster = (*Directory)(nil)

// NewDirectory starts the directory actor.
// layer may be nil, in which case broadcasts are delivered in-process only.
func NewDirectory(clock clockwork.Clock, layer Layer, m *metrics.GroupMetrics) *Directory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &Directory{
		cmdCh:       make(chan directoryCmd, commandChannelSize),
		clock:       clock,
		groups:      make(map[domain.Group]map[Member]struct{}),
		memberships: make(map[Member]map[domain.Group]struct{}),
		layer:       layer,
		metrics:     m,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go d.run()
	return d
}

// Join adds m to group. Joining twice is a no-op.
func (d *Directory) Join(group domain.Group, m Member) error {
	reply := make(chan struct{}, 1)
	if err := d.submit(joinCmd{group: group, member: m, reply: reply}); err != nil {
		return err
	}
	_, err := await(d, reply, "join")
	return err
}

// Leave removes m from group. Leaving a group m is not in is a no-op.
func (d *Directory) Leave(group domain.Group, m Member) error {
	reply := make(chan struct{}, 1)
	if err := d.submit(leaveCmd{group: group, member: m, reply: reply}); err != nil {
		return err
	}
	_, err := await(d, reply, "leave")
	return err
}

// Connect joins m to every canonical group of identity.
func (d *Directory) Connect(m Member, identity domain.Identity) error {
	for _, g := range identity.Groups() {
		if err := d.Join(g, m); err != nil {
			return fmt.Errorf("join %s: %w", g, err)
		}
		slog.Debug("Connection joined group", "conn_id", m.ID(), "group", g)
	}
	return nil
}

// Disconnect removes m from every group it belongs to and returns how many it left.
func (d *Directory) Disconnect(m Member) (int, error) {
	reply := make(chan int, 1)
	if err := d.submit(leaveAllCmd{member: m, reply: reply}); err != nil {
		return 0, err
	}
	return await(d, reply, "disconnect")
}

// Broadcast encodes msg once and delivers it to every member of group. With a
// channel layer configured the frame is published and delivered by every instance
// on receipt, including this one.
func (d *Directory) Broadcast(ctx context.Context, group domain.Group, msg domain.Broadcast) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast for %s: %w", group, err)
	}
	if d.layer != nil {
		if err := d.layer.Publish(ctx, group, frame, msg.Close); err != nil {
			return fmt.Errorf("publish to %s: %w", group, err)
		}
		return nil
	}
	_, err = d.Deliver(group, frame, msg.Close)
	return err
}

// Deliver hands frame to every local member of group and returns the count.
// When closeAfter is set each member is closed after the frame is written.
func (d *Directory) Deliver(group domain.Group, frame []byte, closeAfter bool) (int, error) {
	reply := make(chan int, 1)
	if err := d.submit(deliverCmd{group: group, frame: frame, close: closeAfter, reply: reply}); err != nil {
		return 0, err
	}
	return await(d, reply, "deliver")
}

// Members returns the ids of group's members, sorted.
func (d *Directory) Members(group domain.Group) ([]string, error) {
	reply := make(chan []string, 1)
	if err := d.submit(membersCmd{group: group, reply: reply}); err != nil {
		return nil, err
	}
	return await(d, reply, "members")
}

// GroupsOf returns the groups m belongs to, sorted.
func (d *Directory) GroupsOf(m Member) ([]domain.Group, error) {
	reply := make(chan []domain.Group, 1)
	if err := d.submit(groupsOfCmd{member: m, reply: reply}); err != nil {
		return nil, err
	}
	return await(d, reply, "groups")
}

// Stop shuts the actor down, closing every member after pending frames.
// Blocks until the actor has exited or the stop timeout is reached.
func (d *Directory) Stop() {
	if err := d.submit(stopCmd{}); err != nil {
		return
	}

	timeout := d.clock.NewTimer(d.stopTimeout)
	defer timeout.Stop()

	select {
	case <-d.done:
		slog.Info("Group directory stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Group directory stop timeout exceeded", "timeout", d.stopTimeout)
	}
}

func (d *Directory) submit(cmd directoryCmd) error {
	select {
	case <-d.done:
		return ErrDirectoryStopped
	default:
	}
	select {
	case d.cmdCh <- cmd:
		return nil
	case <-d.done:
		return ErrDirectoryStopped
	}
}

func await[T any](d *Directory, reply chan T, op string) (T, error) {
	timer := d.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case v := <-reply:
		return v, nil
	case <-d.done:
		var zero T
		return zero, ErrDirectoryStopped
	case <-timer.Chan():
		if d.metrics != nil {
			d.metrics.CommandTimeouts.Inc()
		}
		var zero T
		return zero, fmt.Errorf("%s command timed out after %v", op, commandTimeout)
	}
}

func (d *Directory) run() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Group directory panic recovered", "panic", r)
			if d.metrics != nil {
				d.metrics.DirectoryPanics.Inc()
			}
			d.closeAll()
		}
	}()

	depthTicker := d.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(d.cmdCh)
			if d.metrics != nil {
				d.metrics.CommandDepth.Set(float64(depth))
			}
			if depth > commandChannelSize*4/5 {
				slog.Warn("Directory command channel near capacity", "depth", depth, "capacity", cap(d.cmdCh))
			}

		case cmd := <-d.cmdCh:
			switch c := cmd.(type) {
			case joinCmd:
				d.handleJoin(c.group, c.member)
				c.reply <- struct{}{}
			case leaveCmd:
				d.handleLeave(c.group, c.member)
				c.reply <- struct{}{}
			case leaveAllCmd:
				c.reply <- d.handleLeaveAll(c.member)
			case deliverCmd:
				c.reply <- d.handleDeliver(c)
			case membersCmd:
				c.reply <- d.memberIDs(c.group)
			case groupsOfCmd:
				c.reply <- d.groupsOf(c.member)
			case stopCmd:
				d.closeAll()
				return
			default:
				slog.Warn("Group directory received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (d *Directory) handleJoin(group domain.Group, m Member) {
	members, ok := d.groups[group]
	if !ok {
		members = make(map[Member]struct{})
		d.groups[group] = members
	}
	if _, already := members[m]; already {
		return
	}
	members[m] = struct{}{}

	joined, ok := d.memberships[m]
	if !ok {
		joined = make(map[domain.Group]struct{})
		d.memberships[m] = joined
	}
	joined[group] = struct{}{}
	d.updateGauges()
}

func (d *Directory) handleLeave(group domain.Group, m Member) {
	members, ok := d.groups[group]
	if !ok {
		return
	}
	if _, member := members[m]; !member {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(d.groups, group)
	}

	if joined, ok := d.memberships[m]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(d.memberships, m)
		}
	}
	d.updateGauges()
}

func (d *Directory) handleLeaveAll(m Member) int {
	joined := d.memberships[m]
	n := len(joined)
	for group := range joined {
		d.handleLeave(group, m)
	}
	delete(d.memberships, m)
	return n
}

// handleDeliver iterates the member set owned by the actor; no join or leave can
// interleave, and every Send is non-blocking.
func (d *Directory) handleDeliver(c deliverCmd) int {
	members := d.groups[c.group]
	for m := range members {
		m.Send(c.frame)
		if c.close {
			m.CloseAfterFlush()
		}
	}
	if d.metrics != nil {
		d.metrics.BroadcastsTotal.Inc()
		d.metrics.Deliveries.Add(float64(len(members)))
	}
	slog.Debug("Delivered broadcast", "group", c.group, "members", len(members), "close", c.close)
	return len(members)
}

func (d *Directory) memberIDs(group domain.Group) []string {
	ids := make([]string, 0, len(d.groups[group]))
	for m := range d.groups[group] {
		ids = append(ids, m.ID())
	}
	sort.Strings(ids)
	return ids
}

func (d *Directory) groupsOf(m Member) []domain.Group {
	groups := make([]domain.Group, 0, len(d.memberships[m]))
	for g := range d.memberships[m] {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

func (d *Directory) closeAll() {
	for m := range d.memberships {
		m.CloseAfterFlush()
	}
	d.groups = make(map[domain.Group]map[Member]struct{})
	d.memberships = make(map[Member]map[domain.Group]struct{})
	d.updateGauges()
}

func (d *Directory) updateGauges() {
	if d.metrics == nil {
		return
	}
	total := 0
	for _, members := range d.groups {
		total += len(members)
	}
	d.metrics.Groups.Set(float64(len(d.groups)))
	d.metrics.Memberships.Set(float64(total))
}
