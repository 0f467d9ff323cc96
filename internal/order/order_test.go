package order_test

import (
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/order"
)

func validationCodes(err error) map[string]string {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected *internal.AppError, got %v", err)
	Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
	details, ok := appErr.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())

	codes := make(map[string]string)
	for _, e := range details.Errors {
		codes[e.Field] = e.Code
	}
	return codes
}

var _ = Describe("Order", func() {
	Describe("New", func() {
		Context("with valid fields", func() {
			It("creates a pending order with generated id and defaulted body", func() {
				o, err := order.New(validDTO("test_order_123456"))

				Expect(err).NotTo(HaveOccurred())
				Expect(o.ID).NotTo(BeEmpty())
				Expect(o.Status).To(Equal(order.StatusPending))
				Expect(o.Body).To(Equal("Test Product"))
				Expect(o.TotalAmount).To(Equal(order.Amount(9999)))
				Expect(o.TotalAmount.String()).To(Equal("99.99"))
				Expect(o.CreatedAt).To(Equal(o.UpdatedAt))
				Expect(o.PaymentTime).To(BeNil())
			})

			It("stamps times at the microsecond resolution of the timestamp columns", func() {
				o, err := order.New(validDTO("test_order_123456"))
				Expect(err).NotTo(HaveOccurred())
				Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())

				for _, ts := range []time.Time{o.CreatedAt, o.UpdatedAt, *o.PaymentTime} {
					Expect(ts).To(Equal(ts.Truncate(time.Microsecond)))
					Expect(ts.Location()).To(Equal(time.UTC))
				}
			})

			It("keeps a supplied id", func() {
				dto := validDTO("test_order_123456")
				dto.ID = "fixed-id"

				o, err := order.New(dto)
				Expect(err).NotTo(HaveOccurred())
				Expect(o.ID).To(Equal("fixed-id"))
			})

			DescribeTable("accepts boundary values",
				func(mutate func(*order.CreateOrderDTO)) {
					dto := validDTO("test_order_123456")
					mutate(&dto)
					_, err := order.New(dto)
					Expect(err).NotTo(HaveOccurred())
				},
				Entry("minimum amount", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("0.01") }),
				Entry("maximum amount", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("100000") }),
				Entry("trailing zeros beyond two places", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("10.100") }),
				Entry("6 character out_trade_no", func(d *order.CreateOrderDTO) { d.OutTradeNo = "abc_12" }),
				Entry("64 character out_trade_no", func(d *order.CreateOrderDTO) { d.OutTradeNo = strings.Repeat("a", 64) }),
				Entry("256 character subject", func(d *order.CreateOrderDTO) { d.Subject = strings.Repeat("商", 256) }),
				Entry("400 character body", func(d *order.CreateOrderDTO) { d.Body = strings.Repeat("b", 400) }),
			)
		})

		Context("with a single rule violated", func() {
			DescribeTable("names the violated field and rule",
				func(mutate func(*order.CreateOrderDTO), field string, code internal.ErrorCode) {
					dto := validDTO("test_order_123456")
					mutate(&dto)

					_, err := order.New(dto)

					Expect(errors.Is(err, internal.ErrValidationFailed)).To(BeTrue())
					codes := validationCodes(err)
					Expect(codes).To(HaveLen(1))
					Expect(codes).To(HaveKeyWithValue(field, string(code)))
				},
				Entry("missing out_trade_no", func(d *order.CreateOrderDTO) { d.OutTradeNo = "" }, "out_trade_no", internal.ErrCodeValidationFailed),
				Entry("short out_trade_no", func(d *order.CreateOrderDTO) { d.OutTradeNo = "abc12" }, "out_trade_no", internal.ErrCodeInvalidOutTradeNo),
				Entry("long out_trade_no", func(d *order.CreateOrderDTO) { d.OutTradeNo = strings.Repeat("a", 65) }, "out_trade_no", internal.ErrCodeInvalidOutTradeNo),
				Entry("out_trade_no with a dash", func(d *order.CreateOrderDTO) { d.OutTradeNo = "order-123456" }, "out_trade_no", internal.ErrCodeInvalidOutTradeNo),
				Entry("blank subject", func(d *order.CreateOrderDTO) { d.Subject = "   " }, "subject", internal.ErrCodeValidationFailed),
				Entry("long subject", func(d *order.CreateOrderDTO) { d.Subject = strings.Repeat("s", 257) }, "subject", internal.ErrCodeInvalidSubject),
				Entry("long body", func(d *order.CreateOrderDTO) { d.Body = strings.Repeat("b", 401) }, "body", internal.ErrCodeInvalidBody),
				Entry("missing amount", func(d *order.CreateOrderDTO) { d.TotalAmount = decimal.NullDecimal{} }, "total_amount", internal.ErrCodeInvalidAmount),
				Entry("three decimal places", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("10.123") }, "total_amount", internal.ErrCodeAmountPrecision),
				Entry("above range", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("100001") }, "total_amount", internal.ErrCodeAmountOutOfRange),
				Entry("zero", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("0") }, "total_amount", internal.ErrCodeAmountOutOfRange),
				Entry("negative", func(d *order.CreateOrderDTO) { d.TotalAmount = amount("-5") }, "total_amount", internal.ErrCodeAmountOutOfRange),
			)

			It("describes the precision rule in the message", func() {
				dto := validDTO("test_order_123456")
				dto.TotalAmount = amount("10.123")

				_, err := order.New(dto)
				Expect(err.Error()).To(ContainSubstring("max 2 decimal places"))
			})

			It("describes the range rule in the message", func() {
				dto := validDTO("test_order_123456")
				dto.TotalAmount = amount("100001")

				_, err := order.New(dto)
				Expect(err.Error()).To(ContainSubstring("out of range"))
			})
		})

		Context("with several rules violated", func() {
			It("lists every violation, not just the first", func() {
				_, err := order.New(order.CreateOrderDTO{
					OutTradeNo:  "bad",
					Subject:     "",
					Body:        strings.Repeat("b", 401),
					TotalAmount: amount("0.001"),
				})

				codes := validationCodes(err)
				Expect(codes).To(HaveKey("out_trade_no"))
				Expect(codes).To(HaveKey("subject"))
				Expect(codes).To(HaveKey("body"))
				Expect(codes).To(HaveKey("total_amount"))

				appErr, _ := internal.IsAppError(err)
				fields := appErr.Details.(internal.ValidationErrors).Fields()
				Expect(fields).To(ContainElement("total_amount"))
				Expect(len(fields)).To(BeNumerically(">=", 5))
			})
		})
	})

	Describe("UpdateStatus", func() {
		var all = []order.Status{order.StatusPending, order.StatusPaid, order.StatusFailed, order.StatusCancelled}

		inStatus := func(s order.Status) *order.Order {
			o, err := order.New(validDTO("test_order_123456"))
			Expect(err).NotTo(HaveOccurred())
			o.Status = s
			return o
		}

		It("succeeds exactly for pairs in the transition table", func() {
			for _, from := range all {
				for _, to := range all {
					o := inStatus(from)
					err := o.UpdateStatus(to)

					allowed := false
					for _, a := range order.ValidTransitions[from] {
						if a == to {
							allowed = true
						}
					}

					if allowed {
						Expect(err).NotTo(HaveOccurred(), "%s -> %s", from, to)
						Expect(o.Status).To(Equal(to))
					} else {
						Expect(errors.Is(err, internal.ErrInvalidTransition)).To(BeTrue(), "%s -> %s", from, to)
						Expect(o.Status).To(Equal(from))
					}
				}
			}
		})

		It("never leaves paid or cancelled", func() {
			for _, terminal := range []order.Status{order.StatusPaid, order.StatusCancelled} {
				Expect(terminal.IsTerminal()).To(BeTrue())
				for _, to := range all {
					Expect(inStatus(terminal).UpdateStatus(to)).To(HaveOccurred())
				}
			}
		})

		It("carries from and to in the transition error", func() {
			err := inStatus(order.StatusPaid).UpdateStatus(order.StatusFailed)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details).To(Equal(internal.TransitionDetails{From: "paid", To: "failed"}))
		})

		It("rejects unknown statuses", func() {
			err := inStatus(order.StatusPending).UpdateStatus(order.Status("refunded"))
			Expect(errors.Is(err, internal.ErrUnknownStatus)).To(BeTrue())
		})

		It("sets payment time once, on the first transition to paid", func() {
			o := inStatus(order.StatusPending)
			before := o.UpdatedAt

			Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())
			Expect(o.PaymentTime).NotTo(BeNil())
			Expect(o.UpdatedAt).To(BeTemporally(">=", before))
			Expect(*o.PaymentTime).To(Equal(o.UpdatedAt))
		})

		It("keeps an existing payment time when paid again after a failure", func() {
			o := inStatus(order.StatusFailed)
			earlier := o.CreatedAt.Add(-1)
			o.PaymentTime = &earlier

			Expect(o.UpdateStatus(order.StatusPending)).To(Succeed())
			Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())
			Expect(*o.PaymentTime).To(Equal(earlier))
		})
	})

	Describe("SetGatewayInfo", func() {
		It("assigns both fields and refreshes UpdatedAt", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			before := o.UpdatedAt

			o.SetGatewayInfo("2026030122001", "buyer@example.com")

			Expect(o.TradeNo).To(Equal("2026030122001"))
			Expect(o.BuyerLogonID).To(Equal("buyer@example.com"))
			Expect(o.UpdatedAt).To(BeTemporally(">=", before))
		})
	})

	Describe("CanPay and IsPaid", func() {
		It("follow the status", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			Expect(o.CanPay()).To(BeTrue())
			Expect(o.IsPaid()).To(BeFalse())

			Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())
			Expect(o.CanPay()).To(BeFalse())
			Expect(o.IsPaid()).To(BeTrue())
		})
	})

	Describe("Clone", func() {
		It("does not share the payment time", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())

			c := o.Clone()
			*c.PaymentTime = c.PaymentTime.Add(1)
			Expect(*o.PaymentTime).NotTo(Equal(*c.PaymentTime))
		})
	})

	Describe("ParseStatus", func() {
		It("accepts the four statuses and rejects the rest", func() {
			for _, s := range []string{"pending", "paid", "failed", "cancelled"} {
				parsed, err := order.ParseStatus(s)
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed.String()).To(Equal(s))
			}
			_, err := order.ParseStatus("PAID")
			Expect(errors.Is(err, internal.ErrUnknownStatus)).To(BeTrue())
		})
	})

	Describe("data model conversion", func() {
		It("round-trips every field", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			o.SetGatewayInfo("2026030122001", "buyer@example.com")
			Expect(o.UpdateStatus(order.StatusPaid)).To(Succeed())

			back, err := order.FromDataModel(order.ToDataModel(o))
			Expect(err).NotTo(HaveOccurred())
			Expect(back).To(Equal(o))
		})

		It("rejects a record with an unknown status", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			rec := order.ToDataModel(o)
			rec.Status = "settled"

			_, err := order.FromDataModel(rec)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a record with sub-cent precision", func() {
			o, _ := order.New(validDTO("test_order_123456"))
			rec := order.ToDataModel(o)
			rec.TotalAmount = decimal.RequireFromString("1.001")

			_, err := order.FromDataModel(rec)
			Expect(err).To(HaveOccurred())
		})
	})
})
