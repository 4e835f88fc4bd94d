// Package modal holds the process-global modal printer state (§3):
// homing bitmap, current tool, feed rate, scale factors, extruder
// position bookkeeping, and the simulation/soft-limit switches. It is
// mutated only by the executor, never directly by collaborators.
package modal

const (
	MaxAxes     = 6 // X,Y,Z,U,V,W
	MaxExtruders = 6
	MaxDrives   = MaxAxes + MaxExtruders
)

// Geometry selects which soft-limit clamping rule the move builder uses.
type Geometry int

const (
	Cartesian Geometry = iota
	Delta
)

type State struct {
	AxesHomed uint32 // bitmap, one bit per axis

	CurrentTool  int // -1 == none
	FeedRate     float64 // mm/s, last commanded F
	SpeedFactor  float64 // multiplicative override, default 1.0

	ExtrusionFactors       [MaxExtruders]float64
	LastRawExtruderPosition [MaxExtruders]float64

	AxisScaleFactors [MaxAxes]float64
	DistanceScale    float64 // 1.0 mm, 25.4 for G20 inches

	FanValues            map[int]float64 // fan index -> last commanded duty cycle (0..1)
	PausedFanValues      map[int]float64
	PausedRestorePoint    *RestorePoint
	ToolChangeRestorePoint *RestorePoint

	SimulationMode int // 0 = real, nonzero = timing-only
	LimitAxes      bool
	Geometry       Geometry

	PrintRadius float64 // delta-only soft limit
	MinZ, MaxZ  float64
	AxisMin     [MaxAxes]float64
	AxisMax     [MaxAxes]float64
	AxisOffsets [MaxAxes]float64 // M206 babystep-style offsets, added on top of G92/homed position

	ProbeTriggerHeight float64 // G31 Z: nozzle height at which the probe is considered triggered

	DrivesRelative bool
	AxesRelative   bool
}

// RestorePoint mirrors collab.RestorePoint but lives here too so modal
// state can hold one without importing collab (kept in sync by callers).
type RestorePoint struct {
	Positions [MaxDrives]float64
	FeedRate  float64
	FilePos   int64
	FanValues map[int]float64
}

func NewState() *State {
	s := &State{
		SpeedFactor:   1.0,
		DistanceScale: 1.0,
		CurrentTool:   -1,
		LimitAxes:     true,
		FanValues:       map[int]float64{},
		PausedFanValues: map[int]float64{},
	}
	for i := range s.ExtrusionFactors {
		s.ExtrusionFactors[i] = 1.0
	}
	for i := range s.AxisScaleFactors {
		s.AxisScaleFactors[i] = 1.0
	}
	return s
}

func (s *State) AxisIsHomed(axis int) bool { return s.AxesHomed&(1<<uint(axis)) != 0 }
func (s *State) SetAxisHomed(axis int)     { s.AxesHomed |= 1 << uint(axis) }

// ClearAllHomed clears the homing bitmap. Only the emergency-stop paths
// call it; no geometry-change or M584 axis-remapping path exists that
// clears homing.
func (s *State) ClearAllHomed() { s.AxesHomed = 0 }

func (s *State) AllAxesHomed(numAxes int) bool {
	want := uint32(1)<<uint(numAxes) - 1
	return s.AxesHomed&want == want
}
