package io

import (
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/gomarker/fault"
	"github.com/phil-mansfield/gomarker/marker"
	"github.com/phil-mansfield/gomarker/mesh"
	"github.com/phil-mansfield/gomarker/topology"
)

const (
	ExampleRunFile = `[Run]

#######################
# Required Parameters #
#######################

# Directory which restart files and plots will be written to.
Output = path/to/output/dir

# Number of timesteps and the length of each one.
Steps = 100
Timestep = 0.002

#######################
# Optional Parameters #
#######################

# Prefix of restart files to resume from. Rank r reads Input.r. If not set,
# markers are seeded from scratch.
# Input = path/to/output/dir/restart

# Analytic velocity field the markers are advected through. One of
# [ cells | shear ]. FlowSpeed scales it.
# Flow = cells
# FlowSpeed = 1.0

# Restart files are written every RestartInterval steps and at the end of the
# run. 0 only writes them at the end.
# RestartInterval = 0

# Seed of the random number generator used to place markers.
# Seed = 0

# LogFile = log.out
# ProfileFile = prof.out
# Verbose = false

[Markers]

#######################
# Required Parameters #
#######################

# Nominal number of markers in each element.
MarkersPerElement = 20

#######################
# Optional Parameters #
#######################

# The marker array on each process holds CapacityMultiplier times the nominal
# marker count. Must be larger than 1.
# CapacityMultiplier = 2.0

# Only seed dense markers, MarkersPerElement of them in each dense element.
# DenseOnly = false

# How elemental composition is computed from marker counts. One of
# [ ratio | dense-fraction ]. Defaults to ratio, or to dense-fraction if
# DenseOnly is set.
# CompositionPolicy = ratio

# Number of integer flavor tags each marker carries, and how they are
# projected onto nodes. FlavorPolicy is one of [ auto | nearest | mean ].
# Flavors = 0
# FlavorPolicy = auto

# TrackTensorStrain requires TrackStrain.
# TrackStrain = false
# TrackTensorStrain = false

# Initial composition of seeded markers. One of
# [ depth | nodes | checkerboard | sphere ]. Markers at or below
# CompositionDepth start dense under the depth rule.
# InitialComposition = depth
# CompositionDepth = 0.5

# Sphere used by the sphere rule.
# SphereX = 0.5
# SphereY = 0.5
# SphereZ = 0.5
# SphereRadius = 0.2
# SphereInside = 1
# SphereOutside = 0

# The global marker count is logged every DiagnosticInterval steps.
# DiagnosticInterval = 10

[Mesh]

#######################
# Required Parameters #
#######################

# One of [ Cartesian | Spherical ]. Spherical axes are colatitude, longitude
# and radius, in that order, with angles in radians.
System = Cartesian

ElementsX = 32
ElementsY = 4
ElementsZ = 32

XMin = 0
XMax = 1
YMin = 0
YMax = 0.125
ZMin = 0
ZMax = 1

#######################
# Optional Parameters #
#######################

# Processes along each axis. Each must evenly divide the element count.
# ProcsX = 1
# ProcsY = 1
# ProcsZ = 1

# PeriodicX = false
# PeriodicY = false

# Stretched vertical axis: ZColumn of the whitespace separated table in
# ZTable holds the ElementsZ + 1 node coordinates, overriding ZMin and ZMax.
# ZTable = path/to/z_nodes.txt
# ZColumn = 0`
)

type SharedConfig struct {
	// Required
	Output string
	// Optional
	Input, LogFile, ProfileFile string
}

func (con *SharedConfig) ValidInput() bool {
	return con.Input != ""
}
func (con *SharedConfig) ValidOutput() bool {
	return con.Output != ""
}
func (con *SharedConfig) ValidLogFile() bool {
	return con.LogFile != ""
}
func (con *SharedConfig) ValidProfileFile() bool {
	return con.ProfileFile != ""
}

type RunConfig struct {
	SharedConfig

	// Required
	Steps    int
	Timestep float64

	// Optional
	Flow            string
	FlowSpeed       float64
	RestartInterval int
	Seed            int64
	Verbose         bool
}

func (con *RunConfig) ValidSteps() bool {
	return con.Steps > 0
}
func (con *RunConfig) ValidTimestep() bool {
	return con.Timestep > 0
}
func (con *RunConfig) ValidFlow() bool {
	flow := strings.ToLower(con.Flow)
	return flow == "cells" || flow == "shear"
}
func (con *RunConfig) ValidRestartInterval() bool {
	return con.RestartInterval >= 0
}

func (con *RunConfig) CheckInit() error {
	switch {
	case !con.ValidOutput():
		return fault.Configf("Need to specify an Output directory for [Run].")
	case !con.ValidSteps():
		return fault.Configf("Steps must be positive, but is %d.", con.Steps)
	case !con.ValidTimestep():
		return fault.Configf(
			"Timestep must be positive, but is %g.", con.Timestep,
		)
	case !con.ValidFlow():
		return fault.Configf(
			"Flow must be one of [cells | shear]. '%s' is not recognized.",
			con.Flow,
		)
	case !con.ValidRestartInterval():
		return fault.Configf(
			"RestartInterval cannot be negative, but is %d.",
			con.RestartInterval,
		)
	}
	con.Flow = strings.ToLower(con.Flow)
	return nil
}

// Composition policies.
const (
	Ratio         = "ratio"
	DenseFraction = "dense-fraction"
)

// Flavor policies.
const (
	AutoFlavor    = "auto"
	NearestFlavor = "nearest"
	MeanFlavor    = "mean"
)

// MarkerConfig holds the options of the marker subsystem.
type MarkerConfig struct {
	// Required
	MarkersPerElement int

	// Optional
	CapacityMultiplier float64
	DenseOnly          bool
	CompositionPolicy  string
	Flavors            int
	FlavorPolicy       string
	TrackStrain        bool
	TrackTensorStrain  bool

	InitialComposition          string
	CompositionDepth            float64
	SphereX, SphereY, SphereZ   float64
	SphereRadius                float64
	SphereInside, SphereOutside int

	DiagnosticInterval int
}

func (con *MarkerConfig) ValidMarkersPerElement() bool {
	return con.MarkersPerElement > 0
}
func (con *MarkerConfig) ValidCapacityMultiplier() bool {
	return con.CapacityMultiplier > 1
}
func (con *MarkerConfig) ValidCompositionPolicy() bool {
	p := strings.ToLower(con.CompositionPolicy)
	return p == "" || p == Ratio || p == DenseFraction
}
func (con *MarkerConfig) ValidFlavors() bool {
	return con.Flavors >= 0 && con.Flavors <= marker.MaxFlavors
}
func (con *MarkerConfig) ValidFlavorPolicy() bool {
	p := strings.ToLower(con.FlavorPolicy)
	return p == AutoFlavor || p == NearestFlavor || p == MeanFlavor
}
func (con *MarkerConfig) ValidTrackTensorStrain() bool {
	return !con.TrackTensorStrain || con.TrackStrain
}
func (con *MarkerConfig) ValidInitialComposition() bool {
	_, err := marker.ParseRule(strings.ToLower(con.InitialComposition))
	return err == nil
}
func (con *MarkerConfig) ValidSphereRadius() bool {
	return con.SphereRadius > 0
}
func (con *MarkerConfig) ValidDiagnosticInterval() bool {
	return con.DiagnosticInterval > 0
}

// CheckInit validates the configuration and resolves the default
// composition policy.
func (con *MarkerConfig) CheckInit() error {
	con.CompositionPolicy = strings.ToLower(con.CompositionPolicy)
	con.FlavorPolicy = strings.ToLower(con.FlavorPolicy)
	con.InitialComposition = strings.ToLower(con.InitialComposition)

	switch {
	case !con.ValidMarkersPerElement():
		return fault.Configf(
			"MarkersPerElement must be positive, but is %d.",
			con.MarkersPerElement,
		)
	case !con.ValidCapacityMultiplier():
		return fault.Configf(
			"CapacityMultiplier must be larger than 1, but is %g.",
			con.CapacityMultiplier,
		)
	case !con.ValidCompositionPolicy():
		return fault.Configf(
			"CompositionPolicy must be one of [%s | %s]. '%s' is not "+
				"recognized.", Ratio, DenseFraction, con.CompositionPolicy,
		)
	case !con.ValidFlavors():
		return fault.Configf(
			"Flavors must be in the range [0, %d], but is %d.",
			marker.MaxFlavors, con.Flavors,
		)
	case !con.ValidFlavorPolicy():
		return fault.Configf(
			"FlavorPolicy must be one of [%s | %s | %s]. '%s' is not "+
				"recognized.", AutoFlavor, NearestFlavor, MeanFlavor,
			con.FlavorPolicy,
		)
	case !con.ValidTrackTensorStrain():
		return fault.Configf("TrackTensorStrain requires TrackStrain.")
	case !con.ValidInitialComposition():
		return fault.Configf(
			"InitialComposition '%s' is not recognized.",
			con.InitialComposition,
		)
	case con.InitialComposition == "sphere" && !con.ValidSphereRadius():
		return fault.Configf(
			"SphereRadius must be positive, but is %g.", con.SphereRadius,
		)
	case !con.ValidDiagnosticInterval():
		return fault.Configf(
			"DiagnosticInterval must be positive, but is %d.",
			con.DiagnosticInterval,
		)
	}

	if con.CompositionPolicy == "" {
		con.CompositionPolicy = Ratio
		if con.DenseOnly {
			con.CompositionPolicy = DenseFraction
		}
	} else if con.DenseOnly && con.CompositionPolicy == Ratio {
		return fault.Configf(
			"DenseOnly seeding cannot be combined with the %s policy.", Ratio,
		)
	}
	return nil
}

// Layout returns the marker layout implied by the configuration.
func (con *MarkerConfig) Layout() (marker.Layout, error) {
	return marker.NewLayout(con.Flavors, con.TrackStrain, con.TrackTensorStrain)
}

// Nominal returns the nominal marker count of a process with the given
// number of elements.
func (con *MarkerConfig) Nominal(elements int) int {
	return con.MarkersPerElement * elements
}

// Capacity returns the size of the marker array of a process with the given
// number of elements.
func (con *MarkerConfig) Capacity(elements int) int {
	return int(con.CapacityMultiplier * float64(con.Nominal(elements)))
}

// Seeder returns a Seeder for the configured initial composition.
func (con *MarkerConfig) Seeder(l marker.Layout) (*marker.Seeder, error) {
	rule, err := marker.ParseRule(con.InitialComposition)
	if err != nil {
		return nil, err
	}
	return &marker.Seeder{
		Layout: l, Rule: rule, Depth: con.CompositionDepth,
		Center: [3]float64{con.SphereX, con.SphereY, con.SphereZ},
		Radius: con.SphereRadius,
		Inside: con.SphereInside, Outside: con.SphereOutside,
	}, nil
}

type MeshConfig struct {
	// Required
	System                             string
	ElementsX, ElementsY, ElementsZ    int
	XMin, XMax, YMin, YMax, ZMin, ZMax float64

	// Optional
	ProcsX, ProcsY, ProcsZ          int
	PeriodicX, PeriodicY, PeriodicZ bool
	ZTable                          string
	ZColumn                         int
}

func (con *MeshConfig) ValidSystem() bool {
	_, err := con.CoordinateSystem()
	return err == nil
}
func (con *MeshConfig) ValidZTable() bool {
	return con.ZTable != ""
}

// CoordinateSystem parses System.
func (con *MeshConfig) CoordinateSystem() (mesh.System, error) {
	switch strings.ToLower(con.System) {
	case "cartesian":
		return mesh.Cartesian, nil
	case "spherical":
		return mesh.Spherical, nil
	}
	return 0, fault.Configf(
		"System must be one of [Cartesian | Spherical]. '%s' is not "+
			"recognized.", con.System,
	)
}

func (con *MeshConfig) CheckInit() error {
	if !con.ValidSystem() {
		_, err := con.CoordinateSystem()
		return err
	}
	bounds := [3][2]float64{
		{con.XMin, con.XMax}, {con.YMin, con.YMax}, {con.ZMin, con.ZMax},
	}
	for i, b := range bounds {
		if i == 2 && con.ValidZTable() {
			continue
		}
		if b[1] <= b[0] {
			return fault.Configf(
				"Axis %d of [Mesh] has an empty range [%g, %g].", i, b[0], b[1],
			)
		}
	}
	return nil
}

// Decomposition returns the process decomposition of the mesh.
func (con *MeshConfig) Decomposition() (*topology.Decomposition, error) {
	return topology.New(
		[3]int{con.ProcsX, con.ProcsY, con.ProcsZ},
		[3]int{con.ElementsX, con.ElementsY, con.ElementsZ},
		[3]bool{con.PeriodicX, con.PeriodicY, con.PeriodicZ},
	)
}

// Axes returns the global node coordinates of each axis.
func (con *MeshConfig) Axes() ([3][]float64, error) {
	axes := [3][]float64{
		mesh.UniformAxis(con.XMin, con.XMax, con.ElementsX),
		mesh.UniformAxis(con.YMin, con.YMax, con.ElementsY),
		mesh.UniformAxis(con.ZMin, con.ZMax, con.ElementsZ),
	}
	if con.ValidZTable() {
		zs, err := mesh.ReadAxis(con.ZTable, con.ZColumn)
		if err != nil {
			return axes, err
		}
		axes[2] = zs
	}
	return axes, nil
}

type RunWrapper struct {
	Run     RunConfig
	Markers MarkerConfig
	Mesh    MeshConfig
}

func DefaultRunWrapper() *RunWrapper {
	wrap := &RunWrapper{}

	wrap.Run.Flow = "cells"
	wrap.Run.FlowSpeed = 1

	wrap.Markers.CapacityMultiplier = 2
	wrap.Markers.FlavorPolicy = AutoFlavor
	wrap.Markers.InitialComposition = "depth"
	wrap.Markers.CompositionDepth = 0.5
	wrap.Markers.SphereInside = 1
	wrap.Markers.DiagnosticInterval = 10

	wrap.Mesh.System = "Cartesian"
	wrap.Mesh.ProcsX, wrap.Mesh.ProcsY, wrap.Mesh.ProcsZ = 1, 1, 1
	return wrap
}

// CheckInit validates every section.
func (wrap *RunWrapper) CheckInit() error {
	if err := wrap.Run.CheckInit(); err != nil {
		return err
	}
	if err := wrap.Markers.CheckInit(); err != nil {
		return err
	}
	if err := wrap.Mesh.CheckInit(); err != nil {
		return err
	}

	sys, _ := wrap.Mesh.CoordinateSystem()
	rule := wrap.Markers.InitialComposition
	if sys == mesh.Spherical && (rule == "checkerboard" || rule == "sphere") {
		return fault.Configf(
			"InitialComposition '%s' is not supported in Spherical meshes.",
			rule,
		)
	}
	return nil
}

// ReadRunConfig reads and validates a run configuration file.
func ReadRunConfig(fname string) (*RunWrapper, error) {
	wrap := DefaultRunWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	if err := wrap.CheckInit(); err != nil {
		return nil, err
	}
	return wrap, nil
}
