package experiment_test

import (
	"context"
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/seesaw/internal/arming"
	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/rig"
	"github.com/san-kum/seesaw/internal/sampling"
)

var _ = Describe("Loop", func() {
	var (
		cfg   *config.Config
		hw    *fakeRig
		clock *rig.ManualClock
		loop  *experiment.Loop
		rec   *recorder
	)

	step := func(n int) {
		for i := 0; i < n; i++ {
			clock.Advance(uint32(cfg.Rig.PeriodMs))
			loop.Step()
		}
	}

	runToIdle := func() {
		for i := 0; i < 100000 && loop.Phase() == rig.Running; i++ {
			step(1)
		}
		Expect(loop.Phase()).To(Equal(rig.Idle))
	}

	startAndStage := func() {
		Expect(loop.Start()).To(Succeed())
		for i := 0; i < 1000 && loop.Status().Staging; i++ {
			step(1)
		}
		Expect(loop.Status().Staging).To(BeFalse())
	}

	BeforeEach(func() {
		cfg = testConfig()
		hw = &fakeRig{value: rig.Measurement(cfg.Tuning.Setpoint)}
		clock = &rig.ManualClock{Now: math.MaxUint32 - 300}
		rec = &recorder{}

		var err error
		loop, err = experiment.New(cfg, rig.Hardware{Actuators: hw, Relay: hw, Sensor: hw, Clock: clock}, nil)
		Expect(err).NotTo(HaveOccurred())
		loop.AddObserver(rec)
	})

	It("rejects missing collaborators", func() {
		_, err := experiment.New(cfg, rig.Hardware{Actuators: hw, Relay: hw, Clock: clock}, nil)
		Expect(err).To(MatchError(rig.ErrMissingCollaborator))
	})

	Context("before arming", func() {
		It("refuses to start", func() {
			Expect(loop.Start()).To(MatchError(experiment.ErrNotArmed))
			Expect(loop.Phase()).To(Equal(rig.Booting))
		})

		It("ignores steps", func() {
			step(10)
			Expect(hw.writes).To(BeEmpty())
		})
	})

	Context("once armed", func() {
		BeforeEach(func() {
			Expect(loop.Arm(context.Background())).To(Succeed())
		})

		It("is idle with outputs parked and service enabled", func() {
			Expect(loop.Phase()).To(Equal(rig.Idle))
			Expect(loop.Command()).To(Equal(rig.Both(cfg.Rig.OutMin)))
			Expect(loop.ServiceEnabled()).To(BeTrue())
			Expect(hw.energized).To(Equal(1))
			Expect(rec.phases).To(Equal([]rig.Phase{rig.Arming, rig.Idle}))
		})

		It("arms only once", func() {
			Expect(loop.Arm(context.Background())).To(MatchError(arming.ErrAlreadyArmed))
			Expect(hw.energized).To(Equal(1))
		})

		It("has no readable samples before a run", func() {
			_, err := loop.Samples()
			Expect(err).To(MatchError(sampling.ErrNotFinalized))
		})

		It("never moves an output by more than the slew step, except the final stop", func() {
			from := len(hw.writes)
			hw.value = 450
			Expect(loop.Start()).To(Succeed())
			runToIdle()

			run := hw.writes[from:]
			Expect(len(run)).To(BeNumerically(">", 2))
			for i := 1; i < len(run)-1; i++ {
				Expect(abs(run[i].Left - run[i-1].Left)).To(BeNumerically("<=", cfg.Tuning.SlewStep))
				Expect(abs(run[i].Right - run[i-1].Right)).To(BeNumerically("<=", cfg.Tuning.SlewStep))
			}
			Expect(run[len(run)-1]).To(Equal(rig.Both(cfg.Rig.OutMin)))
		})

		It("pauses external service for the whole run", func() {
			Expect(loop.Start()).To(Succeed())
			Expect(loop.ServiceEnabled()).To(BeFalse())
			step(1)
			Expect(loop.Status().Staging).To(BeTrue())
			Expect(loop.ServiceEnabled()).To(BeFalse())
			runToIdle()
			Expect(loop.ServiceEnabled()).To(BeTrue())
		})

		It("keeps the integral bounded", func() {
			hw.value = 300
			startAndStage()
			for loop.Phase() == rig.Running {
				step(1)
				Expect(math.Abs(loop.Integral())).To(BeNumerically("<=", cfg.Tuning.IntegralMax))
			}
		})

		It("keeps the commands symmetric about the base", func() {
			startAndStage()
			for i := 0; loop.Phase() == rig.Running; i++ {
				hw.value = rig.Measurement(512 + 100*math.Sin(float64(i)/10))
				step(1)
				if loop.Phase() == rig.Running {
					c := loop.Command()
					Expect(c.Left + c.Right).To(Equal(2 * cfg.Tuning.Base))
					Expect(abs(c.Delta())).To(BeNumerically("<=", cfg.Tuning.DeltaMax))
				}
			}
		})

		It("rejects a second start without changing anything", func() {
			hw.value = 400
			startAndStage()
			step(20)

			before := loop.Status()
			Expect(loop.Start()).To(MatchError(experiment.ErrAlreadyRunning))
			Expect(loop.Status()).To(Equal(before))
		})

		It("reads back the clamped tuning after a write", func() {
			kp, base := 1000.0, 5000
			got := loop.ApplyTuning(config.Patch{Kp: &kp, Base: &base})
			Expect(got.Kp).To(Equal(config.Limits.Kp.Max))
			Expect(got.Base).To(Equal(cfg.Rig.OutMax))
			Expect(got.DeltaMax).To(Equal(0))

			resp := loop.Handle(experiment.Request{Op: experiment.OpGetTuning})
			Expect(resp.Tuning).To(Equal(got))
		})

		It("re-clamps the integral when its bound shrinks", func() {
			hw.value = 300
			startAndStage()
			step(60)
			Expect(loop.Integral()).To(BeNumerically(">", 10))

			limit := 10.0
			loop.ApplyTuning(config.Patch{IntegralMax: &limit})
			Expect(loop.Integral()).To(BeNumerically("<=", 10))
		})

		It("settles at the base with zero error when the beam sits at the setpoint", func() {
			startAndStage()
			step(50)
			st := loop.Status()
			Expect(st.Error).To(BeNumerically("~", 0, 1e-9))
			Expect(st.Integral).To(BeNumerically("~", 0, 1e-9))
			Expect(st.Command).To(Equal(rig.Both(cfg.Tuning.Base)))
		})

		It("parks both outputs within one step when the sensor leaves the safe window", func() {
			hw.value = 450
			startAndStage()
			step(20)
			integral := loop.Integral()

			hw.value = rig.Measurement(cfg.Rig.SafeMax + 1)
			step(1)
			Expect(hw.last()).To(Equal(rig.Both(cfg.Rig.OutMin)))
			Expect(loop.Phase()).To(Equal(rig.Running))
			Expect(loop.Status().Unsafe).To(BeTrue())
			Expect(loop.Integral()).To(Equal(integral))

			hw.value = 450
			step(1)
			Expect(loop.Status().Unsafe).To(BeFalse())
			Expect(hw.last().Left - cfg.Rig.OutMin).To(BeNumerically("<=", cfg.Tuning.SlewStep))
		})

		It("treats a failed read as unsafe", func() {
			startAndStage()
			hw.readErr = errors.New("serial timeout")
			step(1)
			Expect(hw.last()).To(Equal(rig.Both(cfg.Rig.OutMin)))
			Expect(loop.Status().Trips).To(Equal(1))
		})

		It("returns to idle with readable samples when the duration elapses", func() {
			hw.value = 480
			startAndStage()
			runToIdle()

			Expect(loop.Command()).To(Equal(rig.Both(cfg.Rig.OutMin)))
			samples, err := loop.Samples()
			Expect(err).NotTo(HaveOccurred())
			Expect(samples).NotTo(BeEmpty())
			Expect(samples[0].OffsetMs).To(BeNumerically("<=", cfg.Rig.PeriodMs))
			Expect(samples[len(samples)-1].OffsetMs).To(BeNumerically("<=", cfg.Tuning.DurationMs))
			Expect(loop.Status().ElapsedMs).To(BeNumerically(">=", cfg.Tuning.DurationMs))

			Expect(rec.results).To(HaveLen(1))
			Expect(rec.results[0].Samples).To(Equal(samples))
			Expect(rec.results[0].Aborted).To(BeFalse())
		})

		It("can run again after finishing", func() {
			startAndStage()
			runToIdle()
			startAndStage()
			_, err := loop.Samples()
			Expect(err).To(MatchError(sampling.ErrNotFinalized))
			runToIdle()
			Expect(loop.Status().Runs).To(Equal(2))
		})

		It("aborts a run whose staging never completes", func() {
			hw.value = rig.Measurement(cfg.Rig.SafeMin - 1)
			Expect(loop.Start()).To(Succeed())
			runToIdle()
			Expect(rec.results).To(HaveLen(1))
			Expect(rec.results[0].Aborted).To(BeTrue())
			Expect(rec.results[0].Samples).To(BeEmpty())
		})
	})

	Context("with a small buffer", func() {
		BeforeEach(func() {
			cfg.Rig.BufferCapacity = 10
			cfg.Rig.SampleEvery = 1

			var err error
			loop, err = experiment.New(cfg, rig.Hardware{Actuators: hw, Relay: hw, Sensor: hw, Clock: clock}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(loop.Arm(context.Background())).To(Succeed())
		})

		It("freezes the sample count at capacity and still runs the full duration", func() {
			startAndStage()
			step(30)
			Expect(loop.Status().Samples).To(Equal(10))
			Expect(loop.Phase()).To(Equal(rig.Running))

			runToIdle()
			samples, err := loop.Samples()
			Expect(err).NotTo(HaveOccurred())
			Expect(samples).To(HaveLen(10))
			Expect(loop.Status().ElapsedMs).To(BeNumerically(">=", cfg.Tuning.DurationMs))
		})
	})
})

var _ = Describe("Client", func() {
	It("services requests only while idle", func() {
		cfg := testConfig()
		hw := &fakeRig{value: 512}
		clock := &slowClock{}
		loop, err := experiment.New(cfg, rig.Hardware{Actuators: hw, Relay: hw, Sensor: hw, Clock: clock}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Arm(context.Background())).To(Succeed())

		client := experiment.NewClient()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- loop.Run(ctx, client.Requests()) }()
		defer cancel()

		call, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer callCancel()

		kp, dur := 99.0, 600000
		tuning, err := client.SetTuning(call, config.Patch{Kp: &kp, DurationMs: &dur})
		Expect(err).NotTo(HaveOccurred())
		Expect(tuning.Kp).To(Equal(config.Limits.Kp.Max))

		_, err = client.Samples(call)
		Expect(err).To(MatchError(sampling.ErrNotFinalized))

		st, err := client.Start(call)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Phase).To(Equal(rig.Running))
		Expect(st.ServiceEnabled).To(BeFalse())

		short, shortCancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer shortCancel()
		_, err = client.Status(short)
		Expect(err).To(MatchError(experiment.ErrServicePaused))

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("applies a delivered request exactly when it reports success", func() {
		cfg := testConfig()
		hw := &fakeRig{value: 512}
		loop, err := experiment.New(cfg, rig.Hardware{Actuators: hw, Relay: hw, Sensor: hw, Clock: &rig.ManualClock{}}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(loop.Arm(context.Background())).To(Succeed())
		client := experiment.NewClient()

		By("giving up after delivery but before the loop serves it")
		call, callCancel := context.WithCancel(context.Background())
		go func() {
			req := <-client.Requests()
			callCancel()
			loop.Serve(req)
		}()
		kp := 7.0
		_, err = client.SetTuning(call, config.Patch{Kp: &kp})
		Expect(err).To(MatchError(context.Canceled))
		Expect(loop.Tuning().Kp).NotTo(Equal(kp))

		By("giving up after the loop has applied it")
		for i := 0; i < 50; i++ {
			call, callCancel := context.WithCancel(context.Background())
			kp := float64(i%10 + 1)
			go func() {
				req := <-client.Requests()
				loop.Serve(req)
				callCancel()
			}()
			tuning, err := client.SetTuning(call, config.Patch{Kp: &kp})
			Expect(err).NotTo(HaveOccurred())
			Expect(tuning.Kp).To(Equal(kp))
			Expect(loop.Tuning().Kp).To(Equal(kp))
		}
	})
})

var _ = Describe("Interlock", func() {
	It("reports transitions once", func() {
		il := experiment.NewInterlock(80, 940)

		safe, changed := il.Check(500, nil)
		Expect(safe).To(BeTrue())
		Expect(changed).To(BeFalse())

		safe, changed = il.Check(79, nil)
		Expect(safe).To(BeFalse())
		Expect(changed).To(BeTrue())

		_, changed = il.Check(1023, nil)
		Expect(changed).To(BeFalse())

		safe, changed = il.Check(940, nil)
		Expect(safe).To(BeTrue())
		Expect(changed).To(BeTrue())
		Expect(il.Trips()).To(Equal(1))
	})
})

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
