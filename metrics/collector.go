package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a Snmp into a prometheus.Collector, grounded on the
// Describe/Collect pair used throughout the example pack's exporters.
type Collector struct {
	snmp *Snmp

	descs  []*prometheus.Desc
	fields []*Counter
}

// NewCollector builds a Collector exposing every field of snmp as a
// separate counter metric named arq_<snake_case field>, with a _total
// suffix on every field except CurrEstab.
func NewCollector(snmp *Snmp) *Collector {
	c := &Collector{snmp: snmp}
	c.add("curr_estab", "Number of currently established sessions.", &snmp.CurrEstab)
	c.add("in_segs_total", "Datagrams received.", &snmp.InSegs)
	c.add("out_segs_total", "Datagrams sent.", &snmp.OutSegs)
	c.add("in_bytes_total", "Raw bytes received off the wire.", &snmp.InBytes)
	c.add("out_bytes_total", "Raw bytes written to the wire.", &snmp.OutBytes)
	c.add("bytes_sent_total", "Application bytes accepted by Write.", &snmp.BytesSent)
	c.add("bytes_received_total", "Application bytes returned by Read.", &snmp.BytesReceived)
	c.add("in_errs_total", "Input calls that returned an error.", &snmp.InErrs)
	c.add("repeat_segs_total", "Duplicate segments discarded on receive.", &snmp.RepeatSegs)
	c.add("lost_segs_total", "Segments inferred lost via timeout retransmit.", &snmp.LostSegs)
	c.add("retrans_segs_total", "All retransmitted segments, fast and timeout.", &snmp.RetransSegs)
	c.add("fast_retrans_total", "Fast-retransmitted segments only.", &snmp.FastRetrans)
	return c
}

func (c *Collector) add(name, help string, field *Counter) {
	c.descs = append(c.descs, prometheus.NewDesc("arq_"+name, help, nil, nil))
	c.fields = append(c.fields, field)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(c.fields[i].Value()))
	}
}
