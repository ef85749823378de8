package order

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"optioncore/internal/events"
	"optioncore/internal/sizing"
)

// AdvancedOrderType names one of the six splitting algorithms.
type AdvancedOrderType string

const (
	Iceberg        AdvancedOrderType = "ICEBERG"
	ClassicIceberg AdvancedOrderType = "CLASSIC_ICEBERG"
	TimedSplit     AdvancedOrderType = "TIMED_SPLIT"
	TWAP           AdvancedOrderType = "TWAP"
	EnhancedTWAP   AdvancedOrderType = "ENHANCED_TWAP"
	VWAP           AdvancedOrderType = "VWAP"
)

// AdvancedOrderStatus tracks a parent order's lifecycle.
type AdvancedOrderStatus string

const (
	StatusActive    AdvancedOrderStatus = "ACTIVE"
	StatusComplete  AdvancedOrderStatus = "COMPLETE"
	StatusCancelled AdvancedOrderStatus = "CANCELLED"
)

// ChildOrder is one slice of a parent advanced order.
type ChildOrder struct {
	ChildID       string
	ParentID      string
	Volume        int
	ScheduledTime time.Time
	PriceOffset   float64
	VtOrderID     string
	IsSubmitted   bool
	IsFilled      bool
}

// AdvancedOrder is a parent order split into scheduled children.
type AdvancedOrder struct {
	OrderID      string
	Type         AdvancedOrderType
	Instruction  sizing.Instruction
	Status       AdvancedOrderStatus
	FilledVolume int
	Children     []*ChildOrder
}

// Scheduler owns every in-flight advanced order and its children.
type Scheduler struct {
	orders map[string]*AdvancedOrder
	nextID int
	rand   *rand.Rand
}

// NewScheduler returns an empty scheduler. seed makes CLASSIC_ICEBERG's
// jitter reproducible in tests; production callers can pass
// time.Now().UnixNano().
func NewScheduler(seed int64) *Scheduler {
	return &Scheduler{orders: make(map[string]*AdvancedOrder), rand: rand.New(rand.NewSource(seed))}
}

// PendingOrderCount reports how many advanced orders are still ACTIVE, for
// the monitor snapshot writer's scheduler-backlog gauge.
func (s *Scheduler) PendingOrderCount() int {
	n := 0
	for _, o := range s.orders {
		if o.Status == StatusActive {
			n++
		}
	}
	return n
}

func (s *Scheduler) newOrderID() string {
	s.nextID++
	return fmt.Sprintf("adv-%d", s.nextID)
}

// SubmitIceberg splits instr.Volume into ceil(total/batchSize) equal
// children of batchSize, the last one absorbing the remainder.
func (s *Scheduler) SubmitIceberg(instr sizing.Instruction, batchSize int) (*AdvancedOrder, error) {
	total := instr.Volume
	if total <= 0 {
		return nil, fmt.Errorf("scheduler: total volume must be positive")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("scheduler: batch size must be positive")
	}

	id := s.newOrderID()
	var children []*ChildOrder
	remaining := total
	idx := 0
	for remaining > 0 {
		vol := batchSize
		if vol > remaining {
			vol = remaining
		}
		children = append(children, &ChildOrder{
			ChildID:  fmt.Sprintf("%s_child_%d", id, idx),
			ParentID: id,
			Volume:   vol,
		})
		remaining -= vol
		idx++
	}

	order := &AdvancedOrder{OrderID: id, Type: Iceberg, Instruction: instr, Status: StatusActive, Children: children}
	s.orders[id] = order
	return order, nil
}

// SubmitClassicIceberg splits instr.Volume by perOrderVolume with random
// jitter in [1-jitterRatio, 1+jitterRatio] per child and a random
// price_offset within [-maxTickOffset, +maxTickOffset], adjusting the
// final child so the total still sums exactly to instr.Volume.
func (s *Scheduler) SubmitClassicIceberg(instr sizing.Instruction, perOrderVolume int, jitterRatio float64, maxTickOffset float64) (*AdvancedOrder, error) {
	total := instr.Volume
	if total <= 0 {
		return nil, fmt.Errorf("scheduler: total volume must be positive")
	}
	if perOrderVolume <= 0 {
		return nil, fmt.Errorf("scheduler: per-order volume must be positive")
	}
	if jitterRatio < 0 || jitterRatio > 1 {
		return nil, fmt.Errorf("scheduler: jitter ratio must be within [0,1]")
	}

	id := s.newOrderID()
	count := int(math.Ceil(float64(total) / float64(perOrderVolume)))

	totalD := decimal.NewFromInt(int64(total))
	baseD := decimal.NewFromInt(int64(perOrderVolume))
	ratioD := decimal.NewFromFloat(jitterRatio)

	var children []*ChildOrder
	assigned := 0
	for i := 0; i < count; i++ {
		remainingSlots := count - 1 - i
		var vol int
		if i == count-1 {
			vol = total - assigned
		} else {
			jitter := decimal.NewFromFloat(1).Add(decimal.NewFromFloat(s.rand.Float64()*2 - 1).Mul(ratioD))
			v := baseD.Mul(jitter).Round(0).IntPart()
			if v < 1 {
				v = 1
			}
			maxAllowed := int64(total - assigned - remainingSlots)
			if v > maxAllowed {
				v = maxAllowed
			}
			if v < 1 {
				v = 1
			}
			vol = int(v)
		}
		if vol < 1 {
			vol = 1
		}
		offset := (s.rand.Float64()*2 - 1) * maxTickOffset
		children = append(children, &ChildOrder{
			ChildID:     fmt.Sprintf("%s_child_%d", id, i),
			ParentID:    id,
			Volume:      vol,
			PriceOffset: offset,
		})
		assigned += vol
	}
	_ = totalD

	order := &AdvancedOrder{OrderID: id, Type: ClassicIceberg, Instruction: instr, Status: StatusActive, Children: children}
	s.orders[id] = order
	return order, nil
}

// SubmitTimedSplit splits instr.Volume by perOrderVolume, one child every
// intervalSeconds starting at startTime, independent of fills.
func (s *Scheduler) SubmitTimedSplit(instr sizing.Instruction, intervalSeconds, perOrderVolume int, startTime time.Time) (*AdvancedOrder, error) {
	total := instr.Volume
	if total <= 0 {
		return nil, fmt.Errorf("scheduler: total volume must be positive")
	}
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive")
	}
	if perOrderVolume <= 0 {
		return nil, fmt.Errorf("scheduler: per-order volume must be positive")
	}

	id := s.newOrderID()
	var children []*ChildOrder
	remaining := total
	idx := 0
	for remaining > 0 {
		vol := perOrderVolume
		if vol > remaining {
			vol = remaining
		}
		scheduled := startTime.Add(time.Duration(intervalSeconds*idx) * time.Second)
		children = append(children, &ChildOrder{
			ChildID:       fmt.Sprintf("%s_child_%d", id, idx),
			ParentID:      id,
			Volume:        vol,
			ScheduledTime: scheduled,
		})
		remaining -= vol
		idx++
	}

	order := &AdvancedOrder{OrderID: id, Type: TimedSplit, Instruction: instr, Status: StatusActive, Children: children}
	s.orders[id] = order
	return order, nil
}

// SubmitTWAP divides instr.Volume into numSlices equal pieces (the
// remainder going to the earliest slices) scheduled evenly across
// windowSeconds starting at startTime.
func (s *Scheduler) SubmitTWAP(instr sizing.Instruction, windowSeconds, numSlices int, startTime time.Time) (*AdvancedOrder, error) {
	return s.submitEvenSplit(instr, windowSeconds, numSlices, startTime, TWAP)
}

// SubmitEnhancedTWAP is SubmitTWAP with independently-tunable window and
// slice count, carried as its own type tag for downstream reporting.
func (s *Scheduler) SubmitEnhancedTWAP(instr sizing.Instruction, windowSeconds, numSlices int, startTime time.Time) (*AdvancedOrder, error) {
	return s.submitEvenSplit(instr, windowSeconds, numSlices, startTime, EnhancedTWAP)
}

func (s *Scheduler) submitEvenSplit(instr sizing.Instruction, windowSeconds, numSlices int, startTime time.Time, kind AdvancedOrderType) (*AdvancedOrder, error) {
	total := instr.Volume
	if total <= 0 {
		return nil, fmt.Errorf("scheduler: total volume must be positive")
	}
	if windowSeconds <= 0 {
		return nil, fmt.Errorf("scheduler: time window must be positive")
	}
	if numSlices <= 0 {
		return nil, fmt.Errorf("scheduler: number of slices must be positive")
	}

	id := s.newOrderID()
	base := total / numSlices
	remainder := total % numSlices
	interval := float64(windowSeconds) / float64(numSlices)

	var children []*ChildOrder
	for i := 0; i < numSlices; i++ {
		vol := base
		if i < remainder {
			vol++
		}
		scheduled := startTime.Add(time.Duration(math.Round(interval*float64(i))) * time.Second)
		children = append(children, &ChildOrder{
			ChildID:       fmt.Sprintf("%s_child_%d", id, i),
			ParentID:      id,
			Volume:        vol,
			ScheduledTime: scheduled,
		})
	}

	order := &AdvancedOrder{OrderID: id, Type: kind, Instruction: instr, Status: StatusActive, Children: children}
	s.orders[id] = order
	return order, nil
}

// SubmitVWAP allocates instr.Volume across len(volumeProfile) slices
// proportional to the given (not necessarily normalized) weights, using
// the full largest-remainder method so the split always sums exactly to
// the total: floor each slice's proportional share, then hand the
// leftover units to the slices with the largest fractional remainder.
func (s *Scheduler) SubmitVWAP(instr sizing.Instruction, windowSeconds int, volumeProfile []float64, startTime time.Time) (*AdvancedOrder, error) {
	total := instr.Volume
	if total <= 0 {
		return nil, fmt.Errorf("scheduler: total volume must be positive")
	}
	if windowSeconds <= 0 {
		return nil, fmt.Errorf("scheduler: time window must be positive")
	}
	if len(volumeProfile) == 0 {
		return nil, fmt.Errorf("scheduler: volume profile must not be empty")
	}
	for _, w := range volumeProfile {
		if w <= 0 {
			return nil, fmt.Errorf("scheduler: volume profile weights must be positive")
		}
	}

	id := s.newOrderID()
	numSlices := len(volumeProfile)

	totalWeight := decimal.Zero
	weights := make([]decimal.Decimal, numSlices)
	for i, w := range volumeProfile {
		weights[i] = decimal.NewFromFloat(w)
		totalWeight = totalWeight.Add(weights[i])
	}

	totalD := decimal.NewFromInt(int64(total))
	raw := make([]decimal.Decimal, numSlices)
	floors := make([]int64, numSlices)
	floorSum := int64(0)
	for i := range volumeProfile {
		raw[i] = totalD.Mul(weights[i]).Div(totalWeight)
		floors[i] = raw[i].Floor().IntPart()
		floorSum += floors[i]
	}

	remainder := int(int64(total) - floorSum)
	type frac struct {
		value decimal.Decimal
		idx   int
	}
	fracs := make([]frac, numSlices)
	for i := range volumeProfile {
		fracs[i] = frac{value: raw[i].Sub(decimal.NewFromInt(floors[i])), idx: i}
	}
	sort.SliceStable(fracs, func(a, b int) bool { return fracs[a].value.GreaterThan(fracs[b].value) })
	for j := 0; j < remainder; j++ {
		floors[fracs[j].idx]++
	}

	interval := float64(windowSeconds) / float64(numSlices)
	var children []*ChildOrder
	for i := 0; i < numSlices; i++ {
		scheduled := startTime.Add(time.Duration(math.Round(interval*float64(i))) * time.Second)
		children = append(children, &ChildOrder{
			ChildID:       fmt.Sprintf("%s_child_%d", id, i),
			ParentID:      id,
			Volume:        int(floors[i]),
			ScheduledTime: scheduled,
		})
	}

	order := &AdvancedOrder{OrderID: id, Type: VWAP, Instruction: instr, Status: StatusActive, Children: children}
	s.orders[id] = order
	return order, nil
}

// OnChildFilled marks childID as filled (crediting filledVolume toward
// the parent's FilledVolume) and, once the parent's FilledVolume reaches
// its total volume, completes the parent and returns an
// AdvancedOrderCompleteEvent.
func (s *Scheduler) OnChildFilled(childID string, filledVolume int) []events.DomainEvent {
	for _, order := range s.orders {
		for _, child := range order.Children {
			if child.ChildID != childID || child.IsFilled {
				continue
			}
			child.IsFilled = true
			order.FilledVolume += filledVolume

			if order.FilledVolume >= order.Instruction.Volume {
				order.Status = StatusComplete
				return []events.DomainEvent{events.AdvancedOrderCompleteEvent{
					AdvancedID: order.OrderID,
					Kind:       string(order.Type),
				}}
			}
			return nil
		}
	}
	return nil
}

// GetPendingChildren returns the children ready to submit at now: for
// ICEBERG/CLASSIC_ICEBERG, the single next unsubmitted child once every
// earlier child has filled; for every other type, any unsubmitted child
// whose scheduled time has arrived.
func (s *Scheduler) GetPendingChildren(now time.Time) []*ChildOrder {
	var pending []*ChildOrder
	for _, order := range s.orders {
		if order.Status != StatusActive {
			continue
		}

		if order.Type == Iceberg || order.Type == ClassicIceberg {
			for i, child := range order.Children {
				if child.IsSubmitted || child.IsFilled {
					continue
				}
				allPrevFilled := true
				for _, c := range order.Children[:i] {
					if !c.IsFilled {
						allPrevFilled = false
						break
					}
				}
				if allPrevFilled {
					pending = append(pending, child)
				}
				break
			}
			continue
		}

		for _, child := range order.Children {
			if !child.IsSubmitted && !child.IsFilled && !child.ScheduledTime.IsZero() && !now.Before(child.ScheduledTime) {
				pending = append(pending, child)
			}
		}
	}
	return pending
}

// CancelOrder cancels an in-flight advanced order, returning the vt_order
// ids of its submitted-but-unfilled children (for the caller to send
// cancels for) and an AdvancedOrderCancelledEvent.
func (s *Scheduler) CancelOrder(orderID string) ([]string, []events.DomainEvent) {
	order, ok := s.orders[orderID]
	if !ok || order.Status == StatusComplete || order.Status == StatusCancelled {
		return nil, nil
	}

	order.Status = StatusCancelled
	var cancelIDs []string
	for _, c := range order.Children {
		if c.IsSubmitted && !c.IsFilled {
			cancelIDs = append(cancelIDs, c.VtOrderID)
		}
	}

	var childIDs []string
	for _, c := range order.Children {
		if !c.IsFilled {
			childIDs = append(childIDs, c.ChildID)
		}
	}

	return cancelIDs, []events.DomainEvent{events.AdvancedOrderCancelledEvent{
		AdvancedID:      order.OrderID,
		Kind:            string(order.Type),
		CancelledChilds: childIDs,
	}}
}

// GetOrder looks up an advanced order by id.
func (s *Scheduler) GetOrder(orderID string) (*AdvancedOrder, bool) {
	o, ok := s.orders[orderID]
	return o, ok
}

// MarkChildSubmitted records that a child's vt order id has been sent to
// the gateway, so GetPendingChildren stops re-offering it.
func (s *Scheduler) MarkChildSubmitted(orderID, childID, vtOrderID string) {
	order, ok := s.orders[orderID]
	if !ok {
		return
	}
	for _, c := range order.Children {
		if c.ChildID == childID {
			c.IsSubmitted = true
			c.VtOrderID = vtOrderID
			return
		}
	}
}
