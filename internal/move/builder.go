// Package move implements the move builder (§4.G): converts a parsed
// G0/G1/G92 command into a collab.RawMove using the current modal state
// (units, relative mode, tool offsets, axis mapping, extrusion factor,
// feed-rate scaling, soft limits). Grounded on the procedure in §4.G and
// the classic Cmd_G1-style move-handler flow (feed rate first, then
// extrusion, then axes, tie-broken as noted).
package move

import (
	"math"

	"reprapcore/internal/collab"
	"reprapcore/internal/gcode"
	"reprapcore/internal/gcodeerr"
	"reprapcore/internal/modal"
)

// Tool is the minimal per-tool shape the builder needs: drive count,
// mixing ratios, X-axis mapping, and coordinate offsets.
type Tool struct {
	DriveCount int
	MixRatio   []float64 // len == DriveCount; nil means "no mixing"
	XMapsTo    []int     // physical axis indices driven by commanded X
	Offset     [modal.MaxAxes]float64
	FirstExtruder int // index into ExtrusionFactors/LastRawExtruderPosition
}

var axisLetterOrder = []byte{'X', 'Y', 'Z', 'U', 'V', 'W'}

// extruderCommit is a pending write to LastRawExtruderPosition, computed
// while building the move but not applied to st until the caller's commit
// closure runs — which must only happen once the move is known to have
// been queued (invariant §3.4), not unconditionally inside Build.
type extruderCommit struct {
	extIdx int
	value  float64
}

// Build converts cmd (a G0/G1/G92) into a RawMove given the modal state
// and the current tool (nil if none selected). moveType follows §3's
// RawMove.Type convention; G92 callers pass collab.MoveSetPosition.
//
// The returned commit func applies any LastRawExtruderPosition updates the
// build computed; it is a no-op if the command carried no E word. Callers
// must invoke it only once the move is actually accepted — for a queued
// move that means after Planner.TryQueueMove reports success, never before.
func Build(cmd *gcode.Command, st *modal.State, tool *Tool, moveType collab.MoveType, currentPos [modal.MaxDrives]float64) (collab.RawMove, func(), error) {
	mv := collab.RawMove{Type: moveType}
	for i := range mv.Target {
		mv.Target[i] = currentPos[i]
	}
	var commits []extruderCommit
	commit := func() {
		if st.SimulationMode != 0 {
			return
		}
		for _, c := range commits {
			st.LastRawExtruderPosition[c.extIdx] = c.value
		}
	}

	// 1 & 2: feed rate is evaluated first so subsequent steps see it.
	if cmd.Seen('F') {
		st.FeedRate = cmd.GetFloat('F', st.FeedRate) / 60.0 * st.SpeedFactor // mm/min -> mm/s
	}
	mv.FeedRate = st.FeedRate

	// 3: extrusion, evaluated before axes so X-mapping uses the latest X.
	if cmd.Seen('E') {
		if tool == nil {
			return mv, commit, gcodeerr.Semanticf("no tool selected for extrusion move")
		}
		if err := applyExtrusion(cmd, st, tool, &mv, &commits); err != nil {
			return mv, commit, err
		}
	}

	// 4: axes.
	for axis, letter := range axisLetterOrder {
		if !cmd.Seen(letter) {
			continue
		}
		raw := cmd.GetFloat(letter, 0) * st.DistanceScale * st.AxisScaleFactors[axis]
		physicalAxes := []int{axis}
		if letter == 'X' && tool != nil && len(tool.XMapsTo) > 0 {
			physicalAxes = tool.XMapsTo
		}
		for _, pa := range physicalAxes {
			if moveType == collab.MoveSetPosition {
				mv.Target[pa] = raw
				st.SetAxisHomed(pa)
				continue
			}
			offset := st.AxisOffsets[pa]
			if tool != nil {
				offset += tool.Offset[pa]
			}
			if st.AxesRelative {
				mv.Target[pa] = currentPos[pa] + raw
			} else {
				mv.Target[pa] = raw + offset
			}
		}
	}

	// 5: soft-limit clamping, normal moves only.
	if moveType == collab.MoveNormal && st.LimitAxes {
		clampSoftLimits(st, &mv)
	}

	// 6: pressure advance iff XY motion present.
	mv.UsesPressureAdvance = cmd.Seen('X') || cmd.Seen('Y')

	// 7: endstops to check.
	if moveType == collab.MoveHomingCheck {
		var bits uint32
		for axis, letter := range axisLetterOrder {
			if cmd.Seen(letter) {
				bits |= 1 << uint(axis)
			}
		}
		mv.EndstopsToCheck = bits
	}

	return mv, commit, nil
}

func applyExtrusion(cmd *gcode.Command, st *modal.State, tool *Tool, mv *collab.RawMove, commits *[]extruderCommit) error {
	driveBase := modal.MaxAxes + tool.FirstExtruder

	if tool.MixRatio != nil {
		e := cmd.GetFloat('E', 0)
		for i := 0; i < tool.DriveCount; i++ {
			drive := driveBase + i
			extIdx := tool.FirstExtruder + i
			scalar := e * tool.MixRatio[i]
			delta := deltaForDrive(st, extIdx, scalar, commits)
			mv.Target[drive] = delta * st.ExtrusionFactors[extIdx]
		}
		return nil
	}

	vals, ok := cmd.GetFloatArray('E', tool.DriveCount, true)
	if !ok {
		// single scalar form
		e := cmd.GetFloat('E', 0)
		vals = make([]float64, tool.DriveCount)
		for i := range vals {
			vals[i] = e
		}
	}
	if len(vals) != tool.DriveCount {
		return gcodeerr.Semanticf("E array length %d does not match tool drive count %d", len(vals), tool.DriveCount)
	}
	for i, v := range vals {
		drive := driveBase + i
		extIdx := tool.FirstExtruder + i
		delta := deltaForDrive(st, extIdx, v, commits)
		mv.Target[drive] = delta * st.ExtrusionFactors[extIdx]
	}
	return nil
}

// deltaForDrive computes the incremental move for one extruder drive and
// records the LastRawExtruderPosition write the move would make, without
// applying it — the caller's commit closure (see Build) applies it once
// the move is confirmed queued, per invariant §3.4.
func deltaForDrive(st *modal.State, extIdx int, value float64, commits *[]extruderCommit) float64 {
	var delta float64
	var newValue float64
	if st.DrivesRelative {
		delta = value
		newValue = st.LastRawExtruderPosition[extIdx] + value
	} else {
		delta = value - st.LastRawExtruderPosition[extIdx]
		newValue = value
	}
	*commits = append(*commits, extruderCommit{extIdx, newValue})
	return delta
}

func clampSoftLimits(st *modal.State, mv *collab.RawMove) {
	switch st.Geometry {
	case modal.Cartesian:
		for axis := 0; axis < modal.MaxAxes; axis++ {
			if !st.AxisIsHomed(axis) {
				continue
			}
			if mv.Target[axis] < st.AxisMin[axis] {
				mv.Target[axis] = st.AxisMin[axis]
			}
			if mv.Target[axis] > st.AxisMax[axis] {
				mv.Target[axis] = st.AxisMax[axis]
			}
		}
	case modal.Delta:
		if !st.AllAxesHomed(3) {
			return
		}
		x, y := mv.Target[0], mv.Target[1]
		r := math.Hypot(x, y)
		if r > st.PrintRadius && r > 0 {
			scale := st.PrintRadius / r
			mv.Target[0] = x * scale
			mv.Target[1] = y * scale
		}
		if mv.Target[2] > st.MaxZ {
			mv.Target[2] = st.MaxZ
		}
		if mv.Target[2] < st.MinZ {
			mv.Target[2] = st.MinZ
		}
	}
}
