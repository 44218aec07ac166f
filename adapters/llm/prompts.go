package llm

import (
	"fmt"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

const extractResumePrompt = "Extract all text content from the provided resume document. " +
	"Return only the raw text, without any formatting, labels, or additional commentary."

const searchSystemInstruction = `You are a job search API that uses Google Search. Your only output is a single, raw JSON object with a single key "Job_Listings". The value should be an array of job objects. Each job object must contain: "Title" (string), "Company" (string), "Location" (string), "Apply_URL" (string), and "Contact_Email" (string, or empty string if not found). Your search query must include "site:linkedin.com/jobs". Do not include markdown, comments, or any other text outside of the JSON object.`

func analysisPrompt(resumeText, jobDescription string) string {
	return fmt.Sprintf(`You are an expert ATS (Applicant Tracking System) analyzer. Analyze the provided resume against the job description with deep thought.
1. Calculate a compatibility score from 0 to 100.
2. Identify key strengths where the resume strongly aligns with the job description.
3. Pinpoint specific gaps or missing keywords.
4. Provide actionable recommendations to improve the resume for this specific role.

Resume:
%s

Job Description:
%s`, resumeText, jobDescription)
}

func searchPrompt(jobDescription string) string {
	return fmt.Sprintf(`Use Google Search to find up to 10 official job postings on LinkedIn based on the following job description.
For each job, extract the Title, Company, Location, the direct Apply_URL, and a public Contact_Email if available.

Job Description:
%s`, jobDescription)
}

func coverLetterPrompt(resumeText string, job entities.JobListing) string {
	return fmt.Sprintf(`Based on the provided resume and job listing, generate a professional and concise cover letter.
The tone should be enthusiastic but professional.
Highlight the key skills and experiences from the resume that match the job listing.
Keep it to 3-4 short paragraphs.
Do not include placeholder names or contact information like "[Your Name]" or "[Hiring Manager Name]". Start directly with "Dear Hiring Team,".

Resume Content:
---
%s
---

Job Listing:
---
Title: %s
Company: %s
---`, resumeText, job.Title, job.Company)
}
