package reconcile

import (
	"math"
	"sort"

	"github.com/orefield/specharvest/internal/specs"
)

// rimpullTolerancePct is the per-gear force agreement tolerance.
const rimpullTolerancePct = 10.0

type weightedPoint struct {
	point      specs.RimpullPoint
	confidence float64
}

type pointCluster struct {
	members []weightedPoint
	mass    float64
	mean    float64
}

func (c *pointCluster) add(m weightedPoint) {
	c.members = append(c.members, m)
	c.mass += m.confidence
	total := c.mean*float64(len(c.members)-1) + m.point.ForceKN
	c.mean = total / float64(len(c.members))
}

// ConsolidateRimpull merges rimpull curves for the same machine from
// multiple sources into one curve. For each gear the force values cluster
// with a 10% tolerance against the running cluster mean; the cluster holding
// the most curve confidence wins, its force comes from its most trusted
// member and its speed is the average over the agreeing members. Fewer than
// two consolidated points is no curve.
func (r *Reconciler) ConsolidateRimpull(curves []specs.RimpullCurve) (specs.RimpullCurve, bool) {
	if len(curves) == 0 {
		return specs.RimpullCurve{}, false
	}
	if len(curves) == 1 {
		curve := curves[0]
		if len(curve.Points) < 2 {
			return specs.RimpullCurve{}, false
		}
		return curve, true
	}

	byGear := make(map[int][]weightedPoint)
	for _, curve := range curves {
		for _, point := range curve.Points {
			byGear[point.Gear] = append(byGear[point.Gear], weightedPoint{
				point:      point,
				confidence: curve.Confidence,
			})
		}
	}

	gears := make([]int, 0, len(byGear))
	for gear := range byGear {
		gears = append(gears, gear)
	}
	sort.Ints(gears)

	var (
		points    []specs.RimpullPoint
		confSum   float64
		conflicts bool
	)
	for _, gear := range gears {
		members := byGear[gear]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].point.ForceKN < members[j].point.ForceKN
		})

		var clusters []*pointCluster
		for _, m := range members {
			if len(clusters) > 0 {
				last := clusters[len(clusters)-1]
				if withinTolerance(m.point.ForceKN, last.mean, rimpullTolerancePct) {
					last.add(m)
					continue
				}
			}
			c := &pointCluster{}
			c.add(m)
			clusters = append(clusters, c)
		}

		winner := clusters[0]
		for _, c := range clusters[1:] {
			if c.mass > winner.mass {
				winner = c
			}
		}

		best := winner.members[0]
		for _, m := range winner.members[1:] {
			if m.confidence > best.confidence {
				best = m
			}
		}

		confidence := best.confidence
		if len(members) > 1 {
			confidence += 0.1 * (float64(len(winner.members)) / float64(len(members)))
		}
		if len(clusters) > 1 {
			conflicts = true
			confidence = math.Min(confidence, 0.85)
		}
		confidence = math.Min(confidence, 1.0)
		confSum += confidence

		var speedSum float64
		speedCount := 0
		for _, m := range winner.members {
			if m.point.SpeedKPH > 0 {
				speedSum += m.point.SpeedKPH
				speedCount++
			}
		}
		point := specs.RimpullPoint{Gear: gear, ForceKN: best.point.ForceKN}
		if speedCount > 0 {
			point.SpeedKPH = math.Round(speedSum/float64(speedCount)*10) / 10
		}
		points = append(points, point)
	}

	if len(points) < 2 {
		return specs.RimpullCurve{}, false
	}

	curve := specs.RimpullCurve{
		Brand:      curves[0].Brand,
		Model:      curves[0].Model,
		Points:     points,
		Confidence: round3(confSum / float64(len(points))),
	}
	if conflicts {
		curve.Flags = append(curve.Flags, "force_conflict")
	}
	return curve, true
}
