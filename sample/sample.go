// Package sample provides a fixed demonstration record set for trying the
// searcher without an archive.
package sample

import (
	"github.com/varunsharma6956/ost-mail-searcher/model"
	"github.com/varunsharma6956/ost-mail-searcher/reader"
)

// Source names the sample set when it is stored as a snapshot.
const Source = "sample-data"

// Records returns a fresh copy of the eight sample records, oldest first.
func Records() []model.EmailRecord {
	records := []model.EmailRecord{
		{
			Subject:         "Q4 Financial Report",
			SenderName:      "John Smith",
			SenderEmail:     "john.smith@company.com",
			Recipients:      "finance-team@company.com",
			Timestamp:       "2025-01-15 09:30:00",
			Body:            "Please find attached the Q4 financial report. The revenue increased by 25% compared to Q3. Key highlights include:\n\n- Revenue: $2.5M\n- Expenses: $1.2M\n- Net Profit: $1.3M\n\nLet's schedule a meeting to discuss the results.",
			AttachmentNames: []string{"Q4_Report.pdf", "Financial_Summary.xlsx"},
		},
		{
			Subject:     "Team Meeting - Project Update",
			SenderName:  "Sarah Johnson",
			SenderEmail: "sarah.j@company.com",
			Recipients:  "team@company.com",
			Timestamp:   "2025-01-20 14:00:00",
			Body:        "Hi Team,\n\nJust a reminder about our weekly sync meeting today at 2 PM. We'll discuss:\n\n1. Sprint progress\n2. Blockers and challenges\n3. Next week's priorities\n\nSee you all there!",
		},
		{
			Subject:         "RE: Client Presentation Slides",
			SenderName:      "Michael Brown",
			SenderEmail:     "m.brown@company.com",
			Recipients:      "varunsharma@company.com",
			Timestamp:       "2025-02-01 10:15:00",
			Body:            "Hi Varun,\n\nI've reviewed the presentation slides and they look great! Just a few minor suggestions:\n\n- Add more visuals to slide 5\n- Include the ROI metrics on slide 8\n- Update the timeline on the last slide\n\nOverall, excellent work!",
			AttachmentNames: []string{"Presentation_v3.pptx"},
		},
		{
			Subject:         "Invoice #12345 - Payment Reminder",
			SenderName:      "Accounts Department",
			SenderEmail:     "accounts@vendor.com",
			Recipients:      "billing@company.com",
			Timestamp:       "2025-02-10 08:00:00",
			Body:            "Dear Customer,\n\nThis is a friendly reminder that Invoice #12345 dated January 15, 2025 is due for payment.\n\nAmount Due: $5,000\nDue Date: February 15, 2025\n\nPlease process the payment at your earliest convenience.",
			AttachmentNames: []string{"Invoice_12345.pdf"},
		},
		{
			Subject:         "Welcome to the Company!",
			SenderName:      "HR Department",
			SenderEmail:     "hr@company.com",
			Recipients:      "newemployee@company.com",
			Timestamp:       "2025-02-15 09:00:00",
			Body:            "Welcome aboard!\n\nWe're excited to have you join our team. Your first day is scheduled for February 20, 2025.\n\nPlease review the attached onboarding documents and complete the required forms before your start date.\n\nLooking forward to working with you!",
			AttachmentNames: []string{"Employee_Handbook.pdf", "Benefits_Info.pdf", "Tax_Forms.pdf"},
		},
		{
			Subject:     "System Maintenance Notification",
			SenderName:  "IT Department",
			SenderEmail: "it-support@company.com",
			Recipients:  "all-staff@company.com",
			Timestamp:   "2025-03-01 16:30:00",
			Body:        "IMPORTANT NOTICE:\n\nScheduled system maintenance will occur on March 5, 2025 from 10 PM to 2 AM.\n\nDuring this time:\n- Email services will be unavailable\n- File servers will be offline\n- VPN access will be disabled\n\nPlease plan accordingly and save your work before the maintenance window.",
		},
		{
			Subject:         "Project Proposal - New Initiative",
			SenderName:      "Emily Davis",
			SenderEmail:     "emily.davis@company.com",
			Recipients:      "management@company.com",
			Timestamp:       "2025-03-10 11:20:00",
			Body:            "Dear Management Team,\n\nI'd like to propose a new initiative to improve our customer engagement metrics. The proposal includes:\n\n- Implementation of AI-powered chatbot\n- Customer feedback survey system\n- Automated email campaigns\n\nEstimated budget: $50,000\nTimeline: 6 months\n\nPlease review the attached detailed proposal.",
			AttachmentNames: []string{"Proposal_Document.docx", "Budget_Breakdown.xlsx"},
		},
		{
			Subject:         "Conference Registration Confirmation",
			SenderName:      "Event Organizer",
			SenderEmail:     "events@conference.com",
			Recipients:      "varunsharma@company.com",
			Timestamp:       "2025-03-20 13:45:00",
			Body:            "Thank you for registering for Tech Summit 2025!\n\nEvent Details:\nDate: April 15-17, 2025\nVenue: Convention Center, Downtown\nYour Registration ID: TS2025-7823\n\nPlease bring a printed copy of this confirmation email to the registration desk.",
			AttachmentNames: []string{"Event_Pass.pdf"},
		},
	}

	for i := range records {
		r := &records[i]
		r.ID = reader.RecordID(r.Subject, r.Timestamp)
		if r.AttachmentNames == nil {
			r.AttachmentNames = []string{}
		}
		r.AttachmentCount = len(r.AttachmentNames)
		r.HasAttachments = r.AttachmentCount > 0
	}
	return records
}
