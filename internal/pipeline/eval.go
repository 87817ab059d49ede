package pipeline

import (
	"fmt"
	"sort"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// row は展開済みの (給油所, 製品) の組。
type row struct {
	station *model.Station // 製品を持たないコピー
	product model.Product
}

// cursor は評価中の状態。unwoundがtrueの間はrows、falseの間はstationsが有効。
type cursor struct {
	stations []*model.Station
	rows     []row
	unwound  bool
}

// Run はプランをプロセス内で評価する。入力のStationは変更しない。
// 展開したまま終わるプランはエラーとする。
func Run(stations []*model.Station, p Pipeline) ([]*model.Station, error) {
	c := &cursor{stations: stations}

	for i, stage := range p {
		var err error
		switch st := stage.(type) {
		case MatchStation:
			err = c.matchStation(st)
		case Limit:
			c.limit(st.N)
		case UnwindProducts:
			err = c.unwind()
		case MatchProduct:
			err = c.matchProduct(st)
		case LatestPrice:
			err = c.latestPrice(st)
		case GroupByStation:
			err = c.group(st)
		case SortByStationID:
			err = c.sortByStationID()
		default:
			err = fmt.Errorf("unsupported stage %T", stage)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, stage.stageName(), err)
		}
	}

	if c.unwound {
		return nil, fmt.Errorf("pipeline ends with unwound rows")
	}
	return c.stations, nil
}

// MatchesStation は給油所単位の条件を1件に適用する。
func MatchesStation(m MatchStation, s *model.Station) bool {
	if m.StationID != nil && s.StationID != *m.StationID {
		return false
	}
	if m.Province != "" && !ContainsFold(s.Province, m.Province) {
		return false
	}
	if m.Town != "" && !ContainsFold(s.Town, m.Town) {
		return false
	}
	if m.Flag != "" && !ContainsFold(s.Flag, m.Flag) {
		return false
	}
	if m.FlagID != nil && s.FlagID != *m.FlagID {
		return false
	}
	return true
}

// MatchesProduct は製品条件を1件に適用する。
func MatchesProduct(m MatchProduct, p *model.Product) bool {
	if m.Name != "" && !ContainsFold(p.ProductName, m.Name) {
		return false
	}
	if m.ProductID != nil && p.ProductID != *m.ProductID {
		return false
	}
	return true
}

func (c *cursor) matchStation(m MatchStation) error {
	if c.unwound {
		return fmt.Errorf("station match after unwind")
	}
	out := make([]*model.Station, 0, len(c.stations))
	for _, s := range c.stations {
		if MatchesStation(m, s) {
			out = append(out, s)
		}
	}
	c.stations = out
	return nil
}

func (c *cursor) limit(n int) {
	if n < 0 {
		n = 0
	}
	if c.unwound {
		if len(c.rows) > n {
			c.rows = c.rows[:n]
		}
		return
	}
	if len(c.stations) > n {
		c.stations = c.stations[:n]
	}
}

func (c *cursor) unwind() error {
	if c.unwound {
		return fmt.Errorf("products already unwound")
	}
	rows := make([]row, 0, len(c.stations))
	for _, s := range c.stations {
		base := s.CloneWithoutProducts()
		for _, p := range s.Products {
			rows = append(rows, row{station: base, product: p})
		}
	}
	c.rows = rows
	c.stations = nil
	c.unwound = true
	return nil
}

func (c *cursor) matchProduct(m MatchProduct) error {
	if !c.unwound {
		return fmt.Errorf("product match requires unwound rows")
	}
	out := c.rows[:0:0]
	for _, r := range c.rows {
		if MatchesProduct(m, &r.product) {
			out = append(out, r)
		}
	}
	c.rows = out
	return nil
}

func (c *cursor) latestPrice(l LatestPrice) error {
	if !c.unwound {
		return fmt.Errorf("latest price requires unwound rows")
	}
	out := c.rows[:0:0]
	for _, r := range c.rows {
		latest, ok := SelectLatest(r.product.Prices, l.Strategy)
		if !ok {
			continue
		}
		p := r.product
		p.Prices = []model.Price{latest}
		out = append(out, row{station: r.station, product: p})
	}
	c.rows = out
	return nil
}

// SelectLatest は日付付きの価格から最新の1件を選ぶ。候補がない場合はfalseを返す。
func SelectLatest(prices []model.Price, strategy SelectStrategy) (model.Price, bool) {
	dated := make([]model.Price, 0, len(prices))
	for _, pr := range prices {
		if pr.Date != nil {
			dated = append(dated, pr)
		}
	}
	if len(dated) == 0 {
		return model.Price{}, false
	}

	switch strategy {
	case SelectSortHead:
		sort.SliceStable(dated, func(i, j int) bool {
			return dated[i].Date.After(*dated[j].Date)
		})
		return dated[0], true
	default:
		best := dated[0]
		for _, pr := range dated[1:] {
			if !pr.Date.Before(*best.Date) {
				best = pr
			}
		}
		return best, true
	}
}

func (c *cursor) group(g GroupByStation) error {
	if !c.unwound {
		return fmt.Errorf("group requires unwound rows")
	}

	var order []*model.Station
	grouped := make(map[*model.Station]*model.Station)
	seen := make(map[*model.Station]map[int]bool)

	for _, r := range c.rows {
		out, ok := grouped[r.station]
		if !ok {
			out = r.station.CloneWithoutProducts()
			out.Products = []model.Product{}
			grouped[r.station] = out
			seen[r.station] = make(map[int]bool)
			order = append(order, out)
		}
		if g.DedupProducts {
			if seen[r.station][r.product.ProductID] {
				continue
			}
			seen[r.station][r.product.ProductID] = true
		}
		out.Products = append(out.Products, r.product)
	}

	if g.DedupProducts {
		for _, s := range order {
			sort.SliceStable(s.Products, func(i, j int) bool {
				return s.Products[i].ProductID < s.Products[j].ProductID
			})
		}
	}

	c.stations = order
	c.rows = nil
	c.unwound = false
	return nil
}

func (c *cursor) sortByStationID() error {
	if c.unwound {
		return fmt.Errorf("sort requires grouped stations")
	}
	sorted := make([]*model.Station, len(c.stations))
	copy(sorted, c.stations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StationID < sorted[j].StationID
	})
	c.stations = sorted
	return nil
}
