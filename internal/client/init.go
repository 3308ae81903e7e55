package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/cxlctl/internal/command"
	"github.com/danmuck/cxlctl/internal/dispatch"
	"github.com/danmuck/cxlctl/internal/switchstate"
)

var errAborted = errors.New("client: init aborted")

const (
	initMsgLimitN    = 13
	initConfigBytes  = 64
	initConfigEnable = 0xF
)

// Init fills the cache from the switch. Every step only updates the cache.
// Failed steps are logged and skipped; their errors are joined into the
// result. Init stops early only when ctx is done.
func (s *Session) Init(ctx context.Context) error {
	var errs []error
	step := func(op command.Operation, ppid int, p command.Params) bool {
		if ctx.Err() != nil {
			return false
		}
		if err := s.applyStep(ctx, op, p); err != nil {
			s.log.Warn().Err(err).Str("op", op.String()).Int("ppid", ppid).Msg("init step failed")
			errs = append(errs, &StepError{Op: op, PPID: ppid, Err: err})
			return false
		}
		return true
	}

	step(command.OpShowIdentity, -1, command.Params{})
	step(command.OpSetLimit, -1, command.Params{Limit: command.Some[uint8](initMsgLimitN)})
	step(command.OpShowBOS, -1, command.Params{})
	step(command.OpShowSwitch, -1, command.Params{})

	var numPorts, numVCSs int
	s.state.Read(func(sw *switchstate.Switch) {
		numPorts = min(int(sw.NumPorts), switchstate.MaxPorts)
		numVCSs = min(int(sw.NumVCSs), switchstate.MaxVCSs)
	})
	for i := 0; i < numPorts; i++ {
		step(command.OpShowPort, i, command.Params{PPID: command.Some(uint8(i))})
	}
	for i := 0; i < numVCSs; i++ {
		step(command.OpShowVCS, -1, command.Params{VCSID: command.Some(uint8(i))})
	}

	var present, pooled []uint8
	s.state.Read(func(sw *switchstate.Switch) {
		present = sw.PresentPorts()
		pooled = sw.PooledPorts()
	})
	for _, ppid := range present {
		for reg := 0; reg < initConfigBytes; reg += 4 {
			ok := step(command.OpPortConfig, int(ppid), command.Params{
				PPID:     command.Some(ppid),
				Register: command.Some(uint8(reg)),
				FDBE:     command.Some[uint8](initConfigEnable),
			})
			if !ok {
				break
			}
		}
	}
	for _, ppid := range pooled {
		s.initLogicalDevices(ppid, step)
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", errAborted, err))
	}
	return errors.Join(errs...)
}

func (s *Session) initLogicalDevices(ppid uint8, step func(command.Operation, int, command.Params) bool) {
	port := command.Some(ppid)
	if !step(command.OpShowLDInfo, int(ppid), command.Params{PPID: port}) {
		return
	}
	var num uint16
	s.state.Read(func(sw *switchstate.Switch) {
		if m := sw.Ports[ppid].MLD; m != nil {
			num = m.Num
		}
	})
	window := command.Params{
		PPID: port,
		LDID: command.Some[uint16](0),
		Num:  command.Some(uint8(min(num, 255))),
	}
	step(command.OpShowLDAllocations, int(ppid), window)
	step(command.OpShowQoSControl, int(ppid), command.Params{PPID: port})
	step(command.OpShowQoSAllocated, int(ppid), window)
	step(command.OpShowQoSLimit, int(ppid), window)
	step(command.OpShowQoSStatus, int(ppid), command.Params{PPID: port})
}

func (s *Session) applyStep(ctx context.Context, op command.Operation, p command.Params) error {
	req, err := command.Build(op, p)
	if err != nil {
		return err
	}
	res, err := s.Run(ctx, req, dispatch.ApplyOnly)
	if err != nil {
		return err
	}
	if err := res.Failure(); err != nil {
		return err
	}
	return cacheErr(res)
}
