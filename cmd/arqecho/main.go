package main

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/leenjewel/goarq/metrics"
	"github.com/leenjewel/goarq/session"
)

func main() {
	if err := _main(); err != nil {
		defer os.Exit(1)

		var st errors.StackTrace
		type stackTracer interface {
			StackTrace() errors.StackTrace
		}
		if e, ok := err.(stackTracer); ok {
			st = e.StackTrace()
		}
		glog.Errorf("%s%+v\n", err, st)
	}
}

func _main() error {
	var configFile string
	flag.StringVar(&configFile, "c", "", "path of config file (defaults built in if omitted)")
	flag.Parse()

	conf, err := newConfigRepr(configFile)
	if err != nil {
		return err
	}

	block, err := newBlockCrypt(conf.Crypt, conf.Key)
	if err != nil {
		return err
	}

	if conf.Mode == "client" {
		return runClient(conf, block)
	}
	return runServer(conf, block)
}

func newBlockCrypt(kind, key string) (session.BlockCrypt, error) {
	pass := []byte(key)
	switch kind {
	case "", "none":
		return session.NewNoneBlockCrypt(pass)
	case "aes":
		return session.NewAESBlockCrypt(pass)
	case "salsa20":
		return session.NewSalsa20BlockCrypt(pass)
	case "blowfish":
		return session.NewBlowfishBlockCrypt(pass)
	case "tea":
		return session.NewTEABlockCrypt(pass)
	case "xor":
		return session.NewSimpleXORBlockCrypt(pass)
	default:
		return nil, errors.Errorf("arqecho: unknown crypt kind %q", kind)
	}
}

func runServer(conf *configRepr, block session.BlockCrypt) error {
	l, err := session.ListenWithOptions(conf.Listen, block)
	if err != nil {
		return errors.WithStack(err)
	}
	glog.Infof("arqecho: listening on %s", conf.Listen)

	for {
		sess, err := l.AcceptSession()
		if err != nil {
			return errors.WithStack(err)
		}
		if conf.NoDelay {
			sess.SetNoDelay(1, 10, 2, 1)
		}
		go echo(sess)
	}
}

func echo(sess *session.Session) {
	defer sess.Close()
	buf := make([]byte, 64*1024)
	for {
		n, err := sess.Read(buf)
		if err != nil {
			return
		}
		if _, err := sess.Write(buf[:n]); err != nil {
			return
		}
	}
}

func runClient(conf *configRepr, block session.BlockCrypt) error {
	sess, err := session.DialWithOptions(conf.Dial, conf.Conv, block)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sess.Close()
	if conf.NoDelay {
		sess.SetNoDelay(1, 10, 2, 1)
	}

	payload := make([]byte, conf.Payload)
	reply := make([]byte, conf.Payload)
	for i := 0; i < conf.Count; i++ {
		start := time.Now()
		if _, err := sess.Write(payload); err != nil {
			return errors.WithStack(err)
		}
		if _, err := readFull(sess, reply); err != nil {
			return errors.WithStack(err)
		}
		glog.Infof("arqecho: round trip %d took %s", i, time.Since(start))
	}
	glog.Infof("arqecho: done, in_segs=%d out_segs=%d", metrics.Default.InSegs.Value(), metrics.Default.OutSegs.Value())
	return nil
}

// readFull reads len(buf) bytes from sess, looping over short Reads the way
// a stream-mode consumer must.
func readFull(sess *session.Session, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := sess.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}
